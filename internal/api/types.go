package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Patient is the read-only projection of a registered patient as returned
// by GET /pacientes. Field names follow the service's wire contract.
type Patient struct {
	Nombre             string             `json:"nombre"`
	Edad               int                `json:"edad"`
	Prioridad          string             `json:"prioridad"`
	PrioridadIA        int                `json:"prioridad_ia"`
	PrioridadIAStr     string             `json:"prioridad_ia_str,omitempty"`
	ProbabilidadesIA   map[string]float64 `json:"probabilidades_ia,omitempty"`
	Categoria          string             `json:"categoria"`
	PreguntasSi        []string           `json:"preguntas_si,omitempty"`
	Temperatura        float64            `json:"temperatura"`
	PresionArterial    string             `json:"presion_arterial"`
	FrecuenciaCardiaca float64            `json:"frecuencia_cardiaca"`
	Oxigeno            float64            `json:"oxigeno"`
	Descripcion        string             `json:"descripcion"`
	Timestamp          int64              `json:"timestamp"`
}

// Key identifies a patient within the service, which keys its registry by
// name and age.
func (p *Patient) Key() string {
	return fmt.Sprintf("%s_%d", p.Nombre, p.Edad)
}

// Question is one yes/no triage question. Lower Prioridad is asked first.
type Question struct {
	Pregunta  string `json:"pregunta"`
	Clave     string `json:"clave"`
	Prioridad int    `json:"prioridad"`
}

// Intake is the full patient snapshot submitted to POST /triaje, including
// whatever answers have been recorded so far.
type Intake struct {
	Nombre             string   `json:"nombre"`
	Edad               int      `json:"edad"`
	Temp               float64  `json:"temp"`
	PAS                float64  `json:"pas"`
	PAD                float64  `json:"pad"`
	FrecuenciaCardiaca float64  `json:"frecuencia_cardiaca"`
	Oxigeno            float64  `json:"oxigeno"`
	Descripcion        string   `json:"descripcion"`
	Categoria          *string  `json:"categoria"`
	Respuestas         *Answers `json:"respuestas"`
}

// TriageResult is the 2xx response of POST /triaje. Detener true means the
// service already assigned a terminal priority and no questioning is needed.
type TriageResult struct {
	Prioridad   string `json:"prioridad"`
	PrioridadIA string `json:"prioridad_ia"`
	Detener     bool   `json:"detener"`
}

// TokenSaliency is one token of a saliency explanation with its signed
// contribution score.
type TokenSaliency struct {
	Token string  `json:"token"`
	Shap  float64 `json:"shap"`
}

// Explanation is the response of POST /explicar.
type Explanation struct {
	Descripcion string          `json:"descripcion"`
	Prediccion  int             `json:"prediccion"`
	ShapTexto   []TokenSaliency `json:"shap_texto"`
}

// Answers records yes/no answers keyed by question clave, preserving the
// order in which they were given. The zero value is ready to use.
type Answers struct {
	keys   []string
	values map[string]string
}

// Set records value for key. A repeated key keeps its original position.
func (a *Answers) Set(key, value string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns the recorded answer for key.
func (a *Answers) Get(key string) (string, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Len returns the number of recorded answers.
func (a *Answers) Len() int { return len(a.keys) }

// Keys returns the answer keys in insertion order.
func (a *Answers) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// MarshalJSON emits a JSON object with keys in insertion order.
func (a *Answers) MarshalJSON() ([]byte, error) {
	if a == nil || len(a.keys) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(a.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a plain JSON object. Decoding order follows the
// encoded token order.
func (a *Answers) UnmarshalJSON(data []byte) error {
	a.keys = nil
	a.values = make(map[string]string)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return &json.UnmarshalTypeError{Value: "non-object", Type: nil}
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key := kt.(string)
		var val string
		if err := dec.Decode(&val); err != nil {
			return err
		}
		a.Set(key, val)
	}
	_, err = dec.Token() // closing brace
	return err
}
