package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/aurachain/node/internal/wallet"
	"github.com/aurachain/node/pkg/utils"
)

// Controller adapts Service's methods onto chi handlers, translating the
// typed error taxonomy (spec §7) into the HTTP status classes spec §6
// names: 400 for ValidationError/InsufficientFunds/WalletLocked/ConfigError,
// 500 otherwise.
type Controller struct {
	svc *Service
}

// NewController constructs a Controller around svc.
func NewController(svc *Service) *Controller { return &Controller{svc: svc} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case utils.IsKind(err, utils.KindValidation),
		utils.IsKind(err, utils.KindInsufficientFunds),
		utils.IsKind(err, utils.KindWalletLocked),
		utils.IsKind(err, utils.KindConfig):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"success": "false", "reason": err.Error()})
}

// WalletInfo handles GET /wallet_info.
func (c *Controller) WalletInfo(w http.ResponseWriter, r *http.Request) {
	info, err := c.svc.WalletInfo()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type makePaymentRequest struct {
	Address string             `json:"address"`
	Amount  wallet.TokenAmount `json:"amount"`
}

// MakePayment handles POST /make_payment.
func (c *Controller) MakePayment(w http.ResponseWriter, r *http.Request) {
	var req makePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, utils.NewError(utils.KindValidation, "decode make_payment body", err))
		return
	}
	tx, err := c.svc.MakePayment(req.Address, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type makeIPPaymentRequest struct {
	IP     string             `json:"ip"`
	Amount wallet.TokenAmount `json:"amount"`
}

// MakeIPPayment handles POST /make_ip_payment.
func (c *Controller) MakeIPPayment(w http.ResponseWriter, r *http.Request) {
	var req makeIPPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, utils.NewError(utils.KindValidation, "decode make_ip_payment body", err))
		return
	}
	tx, err := c.svc.MakeIPPayment(r.Context(), req.IP, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type requestDonationRequest struct {
	IP     string             `json:"ip"`
	Amount wallet.TokenAmount `json:"amount"`
}

// RequestDonation handles POST /request_donation.
func (c *Controller) RequestDonation(w http.ResponseWriter, r *http.Request) {
	var req requestDonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, utils.NewError(utils.KindValidation, "decode request_donation body", err))
		return
	}
	if err := c.svc.RequestDonation(r.Context(), req.IP, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// WalletKeypairs handles GET /wallet_keypairs.
func (c *Controller) WalletKeypairs(w http.ResponseWriter, r *http.Request) {
	keys, err := c.svc.WalletKeypairs()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// ImportKeypairs handles POST /import_keypairs.
func (c *Controller) ImportKeypairs(w http.ResponseWriter, r *http.Request) {
	var req []ImportKeypairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, utils.NewError(utils.KindValidation, "decode import_keypairs body", err))
		return
	}
	addrs, err := c.svc.ImportKeypairs(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addrs)
}

// UpdateRunningTotal handles POST /update_running_total.
func (c *Controller) UpdateRunningTotal(w http.ResponseWriter, r *http.Request) {
	total, err := c.svc.UpdateRunningTotal()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]wallet.TokenAmount{"running_total": total})
}

// WalletEncapsulationData handles GET /wallet_encapsulation_data.
func (c *Controller) WalletEncapsulationData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.svc.WalletEncapsulationData())
}

// PaymentAddress handles GET /payment_address.
func (c *Controller) PaymentAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := c.svc.PaymentAddress()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}
