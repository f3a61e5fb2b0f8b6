package intake

import (
	"math"
	"strings"

	"github.com/linnemanlabs/triagedesk/internal/api"
)

// FieldErrors maps an intake field name (wire name) to a human-readable
// message. An empty map means the input passed validation.
type FieldErrors map[string]string

// OK reports whether no field failed.
func (e FieldErrors) OK() bool { return len(e) == 0 }

// ValidateEntry checks the step-1 identity fields before the vitals form is
// shown: non-empty name, age 1..120. Note the lower bound differs from the
// full-form check on purpose; see ValidateVitals.
func ValidateEntry(nombre string, edad int) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(nombre) == "" {
		errs["nombre"] = "El nombre es obligatorio"
	}
	if edad <= 0 || edad > 120 {
		errs["edad"] = "La edad debe estar entre 1 y 120"
	}
	return errs
}

// ValidateVitals checks the full intake before submission: every vital sign
// must be a finite number greater than zero, and age must be 0..120. The
// age range here is deliberately wider than ValidateEntry's; both checks are
// preserved exactly as the product behaves today.
func ValidateVitals(in *api.Intake) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(in.Nombre) == "" {
		errs["nombre"] = "El nombre es obligatorio"
	}
	if in.Edad < 0 || in.Edad > 120 {
		errs["edad"] = "La edad debe estar entre 0 y 120 años"
	}

	vitals := map[string]float64{
		"temp":                in.Temp,
		"pas":                 in.PAS,
		"pad":                 in.PAD,
		"frecuencia_cardiaca": in.FrecuenciaCardiaca,
		"oxigeno":             in.Oxigeno,
	}
	for field, v := range vitals {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			errs[field] = "Campo obligatorio o valor inválido"
		}
	}
	return errs
}
