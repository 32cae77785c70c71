// emergency-button - SMS alert relay for emergency buttons
// Copyright (C) 2025  emergency-button contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// Package handlers exposes the HTTP endpoints of the emergency-button service.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/jredh-dev/emergency-button/internal/alert"
	"github.com/jredh-dev/emergency-button/internal/logging"
)

// Processor runs the alert flow for one inbound message.
type Processor interface {
	Handle(ctx context.Context, in alert.Inbound, logger *zap.Logger) (*alert.Outcome, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	alerts Processor
	logger *zap.Logger
}

// New creates a new Handler.
func New(alerts Processor, logger *zap.Logger) *Handler {
	return &Handler{alerts: alerts, logger: logger}
}

// ackResponse is the success body expected by existing integrations: the
// status code travels in the JSON, not the HTTP status line.
type ackResponse struct {
	Message  int    `json:"Message"`
	Datetime string `json:"Datetime"`
}

// failureBody is returned for every failure, whatever the cause.
var failureBody = map[string]int{"Failed to process SMS": http.StatusInternalServerError}

// InboundEmergency handles the SMS provider webhook.
// POST /emergency-button/inbound-emergency
func (h *Handler) InboundEmergency(w http.ResponseWriter, r *http.Request) {
	log := logging.ForRequest(h.logger, r)

	// Providers POST the webhook as form data.
	if err := r.ParseForm(); err != nil {
		log.Warn("parse form", zap.Error(err))
		jsonOK(w, failureBody)
		return
	}

	in := alert.Inbound{
		From: r.FormValue("From"),
		To:   r.FormValue("To"),
		Body: r.FormValue("Body"),
	}
	log.Info("sms received", zap.String("from", in.From), zap.String("body", in.Body))

	out, err := h.alerts.Handle(r.Context(), in, log)
	if err != nil {
		log.Error("process sms", zap.Error(err))
		jsonOK(w, failureBody)
		return
	}

	if out.Notified {
		log.Info("owner notified", zap.String("event_id", out.Invite.EventID))
	} else {
		log.Info("notification skipped", zap.String("reason", string(out.Skipped)))
	}
	jsonOK(w, ackResponse{Message: http.StatusOK, Datetime: out.Event.Timestamp})
}

// Health reports liveness.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func jsonOK(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(data)
}
