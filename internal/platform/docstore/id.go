package docstore

import "go.mongodb.org/mongo-driver/bson/primitive"

// NewID returns a fresh identifier in ObjectID hex form. All store
// backends use this format so handlers can validate ids uniformly.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID reports whether id is a well-formed store identifier.
func ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// ObjectID converts a hex id into a primitive.ObjectID.
func ObjectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return oid, true
}
