// Package httpapi exposes the marketplace core over REST. Routing follows
// path segments on a stdlib mux; callers are identified by the bearer-token
// middleware and never by request payloads.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	app "github.com/openaid/donation-market/internal/app"
	"github.com/openaid/donation-market/internal/app/errs"
	"github.com/openaid/donation-market/internal/app/metrics"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/donors", h.donors)
	mux.HandleFunc("/recipients", h.recipients)
	mux.HandleFunc("/identities/", h.identityResources)
	mux.HandleFunc("/wallet/", h.wallet)
	mux.HandleFunc("/listings", h.listings)
	mux.HandleFunc("/listings/", h.listingResources)
	mux.HandleFunc("/requests", h.requests)
	mux.HandleFunc("/requests/", h.requestResources)
	mux.HandleFunc("/admin/", h.admin)
	mux.HandleFunc("/events", h.events)
	mux.HandleFunc("/healthz", h.healthz)
	return mux
}

func (h *handler) donors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			DisplayName string `json:"display_name"`
			Credential  string `json:"credential"`
			WalletLimit int64  `json:"wallet_limit"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		donor, err := h.app.Registry.RegisterDonor(r.Context(), callerIdentity(r), payload.DisplayName, payload.Credential, payload.WalletLimit)
		metrics.RecordOperation("registerDonor", err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, donor)

	case http.MethodGet:
		donors, err := h.app.Registry.ListDonors(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, donors)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) recipients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			DisplayName string `json:"display_name"`
			Credential  string `json:"credential"`
			Category    string `json:"category"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		recipient, err := h.app.Registry.RegisterRecipient(r.Context(), callerIdentity(r), payload.DisplayName, payload.Credential, payload.Category)
		metrics.RecordOperation("registerRecipient", err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, recipient)

	case http.MethodGet:
		recipients, err := h.app.Registry.ListRecipients(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, recipients)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) identityResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r.URL.Path, "/identities")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	identity := parts[0]

	if len(parts) == 1 {
		profile, err := h.app.Registry.ProfileOf(r.Context(), identity)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
		return
	}

	switch parts[1] {
	case "balance":
		balance, err := h.app.Ledger.Balance(r.Context(), identity)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
	case "transactions":
		txs, err := h.app.Ledger.Transactions(r.Context(), identity)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, txs)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) wallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r.URL.Path, "/wallet")
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch parts[0] {
	case "topup":
		balance, err := h.app.Ledger.CreditFromDeposit(r.Context(), callerIdentity(r), payload.Amount)
		metrics.RecordOperation("creditFromDeposit", err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		metrics.SetMintedSupply(h.app.Ledger.MintedSupply())
		writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
	case "cashout":
		err := h.app.Ledger.CashOut(r.Context(), callerIdentity(r), payload.Amount)
		metrics.RecordOperation("cashOut", err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		metrics.SetMintedSupply(h.app.Ledger.MintedSupply())
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) listings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Quantity int64  `json:"quantity"`
			Category string `json:"category"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Market.CreateListing(r.Context(), callerIdentity(r), payload.Quantity, payload.Category)
		metrics.RecordOperation("createListing", err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		owner := r.URL.Query().Get("owner")
		list, err := h.app.Market.ListListings(r.Context(), owner)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) listingResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/listings")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	listingID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		l, err := h.app.Market.GetListing(r.Context(), listingID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, l)
		return
	}

	switch parts[1] {
	case "unlist":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		err := h.app.Market.Unlist(r.Context(), callerIdentity(r), listingID)
		metrics.RecordOperation("unlist", err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "requests":
		h.listingRequests(w, r, listingID, parts[2:])

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) listingRequests(w http.ResponseWriter, r *http.Request, listingID string, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reqs, err := h.app.Market.ListRequests(r.Context(), listingID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, reqs)
		return
	}

	requestID := rest[0]
	if len(rest) != 2 || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var err error
	switch rest[1] {
	case "claim":
		err = h.app.Market.RequestDonation(r.Context(), callerIdentity(r), listingID, requestID)
		metrics.RecordOperation("requestDonation", err)
	case "approve":
		err = h.app.Market.Approve(r.Context(), callerIdentity(r), listingID, requestID)
		metrics.RecordOperation("approve", err)
	case "complete":
		err = h.app.Market.CompleteRequest(r.Context(), callerIdentity(r), listingID, requestID)
		metrics.RecordOperation("completeRequest", err)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) requests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Quantity int64  `json:"quantity"`
			Deadline int64  `json:"deadline"`
			Category string `json:"category"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Market.CreateRequest(r.Context(), callerIdentity(r), payload.Quantity, payload.Deadline, payload.Category)
		metrics.RecordOperation("createRequest", err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		reqs, err := h.app.Market.RequestsByRecipient(r.Context(), callerIdentity(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, reqs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) requestResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/requests")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	requestID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		req, err := h.app.Market.GetRequest(r.Context(), requestID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, req)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var err error
	switch parts[1] {
	case "cancel":
		err = h.app.Market.CancelRequest(r.Context(), callerIdentity(r), requestID)
		metrics.RecordOperation("cancelRequest", err)
	case "withdraw":
		err = h.app.Market.WithdrawTokens(r.Context(), callerIdentity(r), requestID)
		metrics.RecordOperation("withdrawTokens", err)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) admin(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/admin")
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "status":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"paused":          h.app.Guard.Paused(),
			"decommissioned":  h.app.Guard.Decommissioned(),
			"conversion_rate": h.app.Ledger.ConversionRate(),
			"minted_supply":   h.app.Ledger.MintedSupply(),
		})

	case "pause":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		paused, err := h.app.Guard.TogglePause(callerIdentity(r))
		metrics.RecordOperation("togglePause", err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})

	case "decommission":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		err := h.app.Guard.Decommission(callerIdentity(r))
		metrics.RecordOperation("decommission", err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "rate":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Rate int64 `json:"rate"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		err := h.app.Ledger.SetConversionRate(r.Context(), callerIdentity(r), payload.Rate)
		metrics.RecordOperation("setConversionRate", err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		fmt.Sscanf(raw, "%d", &limit)
	}
	writeJSON(w, http.StatusOK, h.app.Events.ListLimit(limit))
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathParts(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// statusFor maps the service error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrSystemPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, errs.ErrAlreadyRegistered),
		errors.Is(err, errs.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, errs.ErrInsufficientBalance),
		errors.Is(err, errs.ErrInsufficientQuantity),
		errors.Is(err, errs.ErrLimitExceeded),
		errors.Is(err, errs.ErrSelfDealing),
		errors.Is(err, errs.ErrCategoryMismatch),
		errors.Is(err, errs.ErrOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
