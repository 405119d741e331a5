package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/scheduler"
	"github.com/example/conference-scheduler/internal/seed"
)

type reportDTO struct {
	Events   []eventDTO   `json:"events"`
	Failures []failureDTO `json:"failures,omitempty"`
}

type eventDTO struct {
	Index     int                 `json:"index"`
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Room      string              `json:"room"`
	Start     scheduler.TimeOfDay `json:"start"`
	End       scheduler.TimeOfDay `json:"end"`
	Hosts     []string            `json:"hosts"`
	Attendees []string            `json:"attendees"`
	Occupancy int                 `json:"occupancy"`
	Capacity  int                 `json:"capacity"`
}

type failureDTO struct {
	Item      string            `json:"item"`
	ErrorCode string            `json:"error_code"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflicts []string          `json:"conflicts,omitempty"`
}

func writeReport(w io.Writer, events []application.EventView, failures []seed.Failure) error {
	report := reportDTO{Events: make([]eventDTO, 0, len(events))}
	for _, view := range events {
		report.Events = append(report.Events, toEventDTO(view))
	}
	for _, failure := range failures {
		report.Failures = append(report.Failures, toFailureDTO(failure))
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func toEventDTO(view application.EventView) eventDTO {
	return eventDTO{
		Index:     view.Index,
		ID:        view.ID,
		Title:     view.Title,
		Room:      view.Room,
		Start:     view.Start,
		End:       view.End,
		Hosts:     nonNil(view.HostNames),
		Attendees: nonNil(view.AttendeeIDs),
		Occupancy: view.Occupancy,
		Capacity:  view.Capacity,
	}
}

func toFailureDTO(failure seed.Failure) failureDTO {
	dto := failureDTO{
		Item:      failure.Item,
		ErrorCode: application.ErrorKind(failure.Err),
		Message:   failure.Err.Error(),
	}

	var vErr *application.ValidationError
	if errors.As(failure.Err, &vErr) {
		dto.Errors = vErr.FieldErrors
	}
	var cErr *application.ConflictError
	if errors.As(failure.Err, &cErr) {
		for _, conflict := range cErr.Conflicts {
			dto.Conflicts = append(dto.Conflicts, conflict.Event.Title)
		}
	}
	return dto
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
