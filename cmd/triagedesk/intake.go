package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagedesk/internal/api"
	"github.com/linnemanlabs/triagedesk/internal/intake"
)

// runIntake drives one triage interview on the terminal: identity check,
// vitals form, submission, and the yes/no question sequence with its early
// exit. The interview loops until the service resolves the patient.
func runIntake(ctx context.Context, client *api.Client, L log.Logger) error {
	in := bufio.NewScanner(os.Stdin)
	session := intake.NewSession(client, L)

	fmt.Println("== Registro de paciente ==")

	// Step 1: identity. The vitals form is not shown until this passes.
	var nombre string
	var edad int
	for {
		nombre = readLine(in, "Nombre: ")
		edad = readInt(in, "Edad: ")
		errs := intake.ValidateEntry(nombre, edad)
		if errs.OK() {
			break
		}
		printFieldErrors(errs)
	}

	// Step 2: vitals, then submit until the service accepts or we give up.
	var outcome *intake.StepOutcome
	for outcome == nil {
		snapshot := api.Intake{
			Nombre:             strings.TrimSpace(nombre),
			Edad:               edad,
			Temp:               readFloat(in, "Temperatura (°C): "),
			PAS:                readFloat(in, "Presión sistólica: "),
			PAD:                readFloat(in, "Presión diastólica: "),
			FrecuenciaCardiaca: readFloat(in, "Frecuencia cardíaca: "),
			Oxigeno:            readFloat(in, "Saturación de oxígeno (%): "),
			Descripcion:        readLine(in, "Descripción (opcional): "),
		}

		var fieldErrs intake.FieldErrors
		var err error
		outcome, fieldErrs, err = session.SubmitIntake(ctx, snapshot)
		switch {
		case err != nil:
			if errors.Is(err, intake.ErrBusy) {
				continue
			}
			fmt.Println("❌ Error en la comunicación con el servidor.")
			L.Error(ctx, err, "intake submission failed")
			return err
		case fieldErrs != nil && !fieldErrs.OK():
			printFieldErrors(fieldErrs)
		case outcome == nil:
			// server rejected but every message was unmappable; already logged
			fmt.Println("❌ El servidor rechazó los datos.")
		}
	}

	if outcome.Done {
		fmt.Println("✅ Se ha realizado correctamente el triaje.")
		fmt.Println("Prioridad asignada:", outcome.Result.Prioridad)
		return nil
	}

	// Category choice.
	if len(outcome.Categories) == 0 {
		fmt.Println("❌ No se pudieron cargar las categorías")
		return fmt.Errorf("no categories available")
	}
	fmt.Println("\nSeleccione una categoría:")
	for i, cat := range outcome.Categories {
		fmt.Printf("  %d) %s\n", i+1, cat)
	}
	var category string
	for {
		n := readInt(in, "Categoría: ")
		if n >= 1 && n <= len(outcome.Categories) {
			category = outcome.Categories[n-1]
			break
		}
		fmt.Println("Opción no válida.")
	}
	if err := session.ChooseCategory(category); err != nil {
		return err
	}

	// Question sequence: one at a time, early exit on the first "sí".
	seq := intake.NewSequencer(session, client, L)
	final, err := seq.Start(ctx, category)
	if err != nil {
		fmt.Println("❌ Error al cargar preguntas.")
		return err
	}

	for n := 1; final == nil; n++ {
		q, ok := seq.Current()
		if !ok {
			break
		}
		answer := readYesNo(in, fmt.Sprintf("(%d/%d) %s", n, seq.Len(), q.Pregunta))
		final, err = seq.Answer(ctx, answer)
		if err != nil {
			fmt.Println("❌ Error al enviar respuestas al servidor.")
			return err
		}
	}

	fmt.Println("✅ Se ha realizado correctamente el triaje.")
	if r := session.Result(); r != nil && r.Prioridad != "" {
		fmt.Println("Prioridad asignada:", r.Prioridad)
	}
	return nil
}

func printFieldErrors(errs intake.FieldErrors) {
	for field, msg := range errs {
		fmt.Printf("  %s: %s\n", field, msg)
	}
}

func readLine(in *bufio.Scanner, prompt string) string {
	fmt.Print(prompt)
	if !in.Scan() {
		return ""
	}
	return strings.TrimSpace(in.Text())
}

func readInt(in *bufio.Scanner, prompt string) int {
	for {
		raw := readLine(in, prompt)
		n, err := strconv.Atoi(raw)
		if err == nil {
			return n
		}
		fmt.Println("Introduzca un número entero.")
	}
}

func readFloat(in *bufio.Scanner, prompt string) float64 {
	for {
		raw := readLine(in, prompt)
		f, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			return f
		}
		fmt.Println("Introduzca un número.")
	}
}

func readYesNo(in *bufio.Scanner, question string) string {
	for {
		raw := strings.ToLower(readLine(in, question+" [s/n]: "))
		switch raw {
		case "s", "si", "sí":
			return intake.AnswerYes
		case "n", "no":
			return intake.AnswerNo
		}
		fmt.Println("Responda s o n.")
	}
}
