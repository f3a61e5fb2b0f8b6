package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key", 5*time.Second)
}

func TestListPatients(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pacientes" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"pacientes":[
			{"nombre":"Ana","edad":40,"prioridad":"🔴 Prioridad 1","prioridad_ia":2,"timestamp":1700000000},
			{"nombre":"Luis","edad":55,"prioridad":"🟡 Prioridad 3"}
		]}`))
	}))

	got, err := c.ListPatients(context.Background())
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d patients, want 2", len(got))
	}
	if got[0].Nombre != "Ana" || got[0].PrioridadIA != 2 || got[0].Timestamp != 1700000000 {
		t.Errorf("first patient = %+v", got[0])
	}
	if got[0].Key() != "Ana_40" {
		t.Errorf("Key() = %q, want Ana_40", got[0].Key())
	}
}

func TestListPatientsEmptyBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	got, err := c.ListPatients(context.Background())
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d patients, want 0", len(got))
	}
}

func TestDeleteAllPatients(t *testing.T) {
	t.Parallel()

	var gotKey string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/pacientes" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("X-API-Key")
		_, _ = w.Write([]byte(`{"mensaje":"ok"}`))
	}))

	if err := c.DeleteAllPatients(context.Background()); err != nil {
		t.Fatalf("DeleteAllPatients: %v", err)
	}
	if gotKey != "test-key" {
		t.Errorf("X-API-Key = %q, want test-key", gotKey)
	}
}

func TestDeleteAllPatientsRejected(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"Clave inválida"}`, http.StatusForbidden)
	}))

	if err := c.DeleteAllPatients(context.Background()); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestSubmitTriage(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got map[string]any
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if got["nombre"] != "Ana" {
			t.Errorf("nombre = %v", got["nombre"])
		}
		// a nil category and empty answers still travel on the wire
		if _, ok := got["categoria"]; !ok {
			t.Error("categoria field missing from payload")
		}
		if _, ok := got["respuestas"]; !ok {
			t.Error("respuestas field missing from payload")
		}
		_, _ = w.Write([]byte(`{"prioridad":"🟠 Prioridad 2","prioridad_ia":"2","detener":false}`))
	}))

	in := &Intake{Nombre: "Ana", Edad: 40, Temp: 36.5, PAS: 120, PAD: 80, FrecuenciaCardiaca: 70, Oxigeno: 98, Respuestas: &Answers{}}
	result, err := c.SubmitTriage(context.Background(), in)
	if err != nil {
		t.Fatalf("SubmitTriage: %v", err)
	}
	if result.Detener || result.Prioridad != "🟠 Prioridad 2" || result.PrioridadIA != "2" {
		t.Errorf("result = %+v", result)
	}
}

func TestSubmitTriageValidationError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":["La temperatura debe estar entre 30 y 45"]}`))
	}))

	_, err := c.SubmitTriage(context.Background(), &Intake{Nombre: "Ana"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if ve.StatusCode != 422 || len(ve.Messages) != 1 {
		t.Errorf("validation error = %+v", ve)
	}
}

func TestSubmitTriageUnstructured4xx(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
	}))

	_, err := c.SubmitTriage(context.Background(), &Intake{Nombre: "Ana"})
	if err == nil {
		t.Fatal("expected error")
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		t.Fatalf("plain 4xx must not become a ValidationError, got %+v", ve)
	}
}

func TestSubmitTriageServerError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	if _, err := c.SubmitTriage(context.Background(), &Intake{Nombre: "Ana"}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestCategories(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/categorias" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`["Dolor torácico","Dolor abdominal","Fiebre"]`))
	}))

	got, err := c.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(got) != 3 || got[0] != "Dolor torácico" {
		t.Errorf("categories = %v", got)
	}
}

func TestQuestionsEscapesCategory(t *testing.T) {
	t.Parallel()

	var gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`[{"pregunta":"¿Dolor opresivo?","clave":"opresivo","prioridad":1}]`))
	}))

	got, err := c.Questions(context.Background(), "Dolor torácico")
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if gotPath != "/preguntas/Dolor%20tor%C3%A1cico" {
		t.Errorf("request path = %q", gotPath)
	}
	if len(got) != 1 || got[0].Clave != "opresivo" {
		t.Errorf("questions = %+v", got)
	}
}

func TestQuestionsSlashInCategoryStaysOneSegment(t *testing.T) {
	t.Parallel()

	var gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`[]`))
	}))

	// category labels are free text; a "/" must not split the path
	if _, err := c.Questions(context.Background(), "Dolor torácico / pecho"); err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if gotPath != "/preguntas/Dolor%20tor%C3%A1cico%20%2F%20pecho" {
		t.Errorf("request path = %q, want the slash escaped inside one segment", gotPath)
	}
}

func TestExplain(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/explicar" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var got map[string]string
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if got["descripcion"] != "dolor en el pecho" {
			t.Errorf("descripcion = %q", got["descripcion"])
		}
		_, _ = w.Write([]byte(`{"descripcion":"dolor en el pecho","prediccion":2,"shap_texto":[{"token":"▁dolor","shap":0.42}]}`))
	}))

	got, err := c.Explain(context.Background(), "dolor en el pecho")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if got.Prediccion != 2 || len(got.ShapTexto) != 1 || got.ShapTexto[0].Shap != 0.42 {
		t.Errorf("explanation = %+v", got)
	}
}

func TestEndpointJoinsBasePath(t *testing.T) {
	t.Parallel()

	c := New("http://triage.internal/api/base", "", time.Second)
	u, err := c.endpoint("preguntas", "Fiebre")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	if u != "http://triage.internal/api/base/preguntas/Fiebre" {
		t.Errorf("endpoint = %q", u)
	}
}
