package todos

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/todo-api/internal/platform/docstore"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

const testUserHeader = "X-Test-User"

// headerAuth trusts a header instead of a session cookie.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(testUserHeader)
		if id == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), &shared.Principal{UserID: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newTodoRouter() http.Handler {
	h := NewHandler(nil, NewService(NewMemoryRepository()), headerAuth)
	r := chi.NewRouter()
	r.Route("/todos", h.MountRoutes)
	return r
}

func createTodo(t *testing.T, router http.Handler, user, text string) Todo {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/todos", strings.NewReader(`{"text":"`+text+`"}`))
	req.Header.Set(testUserHeader, user)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "completedAt")

	var todo Todo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &todo))
	assert.Equal(t, text, todo.Text)
	assert.Equal(t, user, todo.Owner)
	assert.False(t, todo.Completed)
	return todo
}

func TestCreateRequiresText(t *testing.T) {
	router := newTodoRouter()
	apitest.New().
		Handler(router).
		Post("/todos").
		Header(testUserHeader, docstore.NewID()).
		JSON(`{}`).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
}

func TestListGetPatchDelete(t *testing.T) {
	router := newTodoRouter()
	alice := docstore.NewID()
	todo := createTodo(t, router, alice, "buy milk")
	createTodo(t, router, alice, "walk dog")

	apitest.New().
		Handler(router).
		Get("/todos").
		Header(testUserHeader, alice).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len(`$.resources`, 2)).
		End()

	apitest.New().
		Handler(router).
		Get("/todos/"+todo.ID).
		Header(testUserHeader, alice).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal(`$.resource.text`, "buy milk")).
		End()

	apitest.New().
		Handler(router).
		Patch("/todos/"+todo.ID).
		Header(testUserHeader, alice).
		JSON(`{"completed":true,"completedAt":123}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal(`$.resource.completed`, true)).
		Assert(jsonpath.Present(`$.resource.completedAt`)).
		Assert(jsonpath.NotEqual(`$.resource.completedAt`, float64(123))).
		End()

	apitest.New().
		Handler(router).
		Patch("/todos/"+todo.ID).
		Header(testUserHeader, alice).
		JSON(`{"completed":false,"completedAt":123}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal(`$.resource.completed`, false)).
		Assert(jsonpath.NotPresent(`$.resource.completedAt`)).
		End()

	apitest.New().
		Handler(router).
		Delete("/todos/"+todo.ID).
		Header(testUserHeader, alice).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal(`$.resource.id`, todo.ID)).
		End()

	apitest.New().
		Handler(router).
		Get("/todos/"+todo.ID).
		Header(testUserHeader, alice).
		Expect(t).
		Status(http.StatusNotFound).
		End()
}

func TestPatchNonBooleanCompletedClears(t *testing.T) {
	router := newTodoRouter()
	alice := docstore.NewID()
	todo := createTodo(t, router, alice, "buy milk")

	for _, body := range []string{`{"completed":"true"}`, `{"completed":1}`, `{"completed":null}`, `{"completed":{"v":true}}`} {
		apitest.New().
			Handler(router).
			Patch("/todos/"+todo.ID).
			Header(testUserHeader, alice).
			JSON(`{"completed":true}`).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.resource.completed`, true)).
			End()

		apitest.New().
			Handler(router).
			Patch("/todos/"+todo.ID).
			Header(testUserHeader, alice).
			JSON(body).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.resource.completed`, false)).
			Assert(jsonpath.NotPresent(`$.resource.completedAt`)).
			Assert(jsonpath.Equal(`$.resource.text`, "buy milk")).
			End()
	}
}

func TestOtherUserSeesNothing(t *testing.T) {
	router := newTodoRouter()
	alice, bob := docstore.NewID(), docstore.NewID()
	todo := createTodo(t, router, alice, "secret plan")

	apitest.New().
		Handler(router).
		Get("/todos").
		Header(testUserHeader, bob).
		Expect(t).
		Status(http.StatusOK).
		Body(`{"resources":[]}`).
		End()

	for _, call := range []func() *apitest.Request{
		func() *apitest.Request { return apitest.New().Handler(router).Get("/todos/" + todo.ID) },
		func() *apitest.Request {
			return apitest.New().Handler(router).Patch("/todos/" + todo.ID).JSON(`{"text":"pwned","completed":true}`)
		},
		func() *apitest.Request { return apitest.New().Handler(router).Delete("/todos/" + todo.ID) },
	} {
		call().Header(testUserHeader, bob).Expect(t).Status(http.StatusNotFound).End()
	}

	apitest.New().
		Handler(router).
		Get("/todos/"+todo.ID).
		Header(testUserHeader, alice).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal(`$.resource.text`, "secret plan")).
		Assert(jsonpath.Equal(`$.resource.completed`, false)).
		End()
}

func TestMalformedIDsAre404(t *testing.T) {
	router := newTodoRouter()
	user := docstore.NewID()

	apitest.New().Handler(router).Get("/todos/fakeId").Header(testUserHeader, user).
		Expect(t).Status(http.StatusNotFound).End()
	apitest.New().Handler(router).Patch("/todos/fakeId").Header(testUserHeader, user).Body(`{bad json`).
		Expect(t).Status(http.StatusNotFound).End()
	apitest.New().Handler(router).Delete("/todos/fakeId").Header(testUserHeader, user).
		Expect(t).Status(http.StatusNotFound).End()
	apitest.New().Handler(router).Get("/todos/"+docstore.NewID()).Header(testUserHeader, user).
		Expect(t).Status(http.StatusNotFound).End()
}

func TestRoutesRequireAuth(t *testing.T) {
	router := newTodoRouter()
	res := apitest.New().Handler(router).Get("/todos").Expect(t).Status(http.StatusUnauthorized).End()
	assert.NotNil(t, res.Response)
}
