package curation

import (
	"fmt"
	"strings"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
)

// Action is something a curator (or the AI worker) can do to a product.
type Action string

const (
	ActionSendToAI       Action = "send_to_ai"
	ActionCurateManually Action = "curate_manually"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionChangeBrand    Action = "change_brand"
	ActionChangeCategory Action = "change_category"
	ActionCompleteAI     Action = "complete_ai"
	ActionRestore        Action = "restore"
	ActionRelease        Action = "release"
	ActionDelete         Action = "delete"
)

// actionOrder fixes the order AvailableActions reports in.
var actionOrder = []Action{
	ActionSendToAI,
	ActionCurateManually,
	ActionApprove,
	ActionReject,
	ActionChangeBrand,
	ActionChangeCategory,
	ActionCompleteAI,
	ActionRestore,
	ActionRelease,
	ActionDelete,
}

// transitions is the full legal table. A target of "" means the outcome is
// decided by the action's input (the AI verdict) and removal for delete.
var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionSendToAI:       StatusProcessing,
		ActionCurateManually: StatusCurated,
		ActionApprove:        StatusPublished,
		ActionReject:         StatusRejected,
		ActionChangeBrand:    StatusPending,
		ActionChangeCategory: StatusPending,
		ActionDelete:         "",
	},
	StatusProcessing: {
		ActionCompleteAI: "",
		ActionRelease:    StatusPending,
	},
	StatusCurated: {
		ActionApprove:        StatusPublished,
		ActionReject:         StatusRejected,
		ActionChangeBrand:    StatusCurated,
		ActionChangeCategory: StatusCurated,
		ActionDelete:         "",
	},
	StatusRejected: {
		ActionRestore: StatusPending,
		ActionDelete:  "",
	},
}

// IllegalTransitionError is returned when an action is not permitted from a
// product's current status, or its guard is not met. The product is never
// mutated when this is returned.
type IllegalTransitionError struct {
	ProductID string
	From      Status
	Action    Action
	Reason    string
}

func (e *IllegalTransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s product %s from status %s", e.Action, e.ProductID, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *IllegalTransitionError) Unwrap() error { return apperr.ErrIllegalTransition }

// Allowed reports whether action appears in the table for status.
func Allowed(status Status, action Action) bool {
	_, ok := transitions[status][action]
	return ok
}

// AvailableActions lists the actions legal from status, in a stable order.
func AvailableActions(status Status) []Action {
	out := make([]Action, 0, len(transitions[status]))
	for _, a := range actionOrder {
		if Allowed(status, a) {
			out = append(out, a)
		}
	}
	return out
}

// ValidAction reports whether a is a known action.
func ValidAction(a Action) bool {
	for _, known := range actionOrder {
		if a == known {
			return true
		}
	}
	return false
}

func checkAllowed(p *Product, action Action) error {
	if !Allowed(p.Status, action) {
		return &IllegalTransitionError{
			ProductID: p.ID,
			From:      p.Status,
			Action:    action,
			Reason:    "action not permitted from this status",
		}
	}
	return nil
}

// ActionFor maps a requested target status to the action that reaches it
// from current. complete_ai is never returned; only the AI worker decides it.
func ActionFor(current, target Status) (Action, bool) {
	for _, a := range actionOrder {
		if a == ActionCompleteAI || a == ActionDelete {
			continue
		}
		to, ok := transitions[current][a]
		if ok && to == target && to != current {
			return a, true
		}
	}
	return "", false
}

// ManualCuration is what a curator must supply to curate a product by hand.
type ManualCuration struct {
	Brand          string  `json:"brand" validate:"required,max=255"`
	Category       string  `json:"category" validate:"required,max=255"`
	BrandValidated *bool   `json:"brand_validated" validate:"required"`
	Notes          *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// Verdict is the result of an AI classification.
type Verdict struct {
	Outcome    Status `json:"outcome" validate:"oneof=curated rejected"`
	Brand      string `json:"brand,omitempty" validate:"max=255"`
	Category   string `json:"category,omitempty" validate:"max=255"`
	Confidence int    `json:"confidence" validate:"gte=0,lte=100"`
	Reason     string `json:"reason,omitempty"`
}

var validate = apperr.NewValidator()

// SendToAI moves a pending product into processing.
func SendToAI(p *Product) error {
	if err := checkAllowed(p, ActionSendToAI); err != nil {
		return err
	}
	p.Status = StatusProcessing
	return nil
}

// CurateManually records a curator's brand and category and marks the product curated.
func CurateManually(p *Product, in ManualCuration) error {
	if err := checkAllowed(p, ActionCurateManually); err != nil {
		return err
	}
	in.Brand = strings.TrimSpace(in.Brand)
	in.Category = strings.TrimSpace(in.Category)
	if err := validate.Struct(in); err != nil {
		return apperr.FromValidator(err)
	}
	cd := p.curated()
	cd.BrandName = &in.Brand
	cd.CategoryName = &in.Category
	validated := *in.BrandValidated
	cd.BrandValidated = &validated
	if in.Notes != nil {
		notes := *in.Notes
		cd.Notes = &notes
	}
	p.Status = StatusCurated
	return nil
}

// Approve publishes a product once its brand and category are resolved.
func Approve(p *Product) error {
	if err := checkAllowed(p, ActionApprove); err != nil {
		return err
	}
	var missing []string
	if p.ResolvedBrand() == "" {
		missing = append(missing, "brand")
	}
	if p.ResolvedCategory() == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return &IllegalTransitionError{
			ProductID: p.ID,
			From:      p.Status,
			Action:    ActionApprove,
			Reason:    strings.Join(missing, " and ") + " not resolved",
		}
	}
	p.Status = StatusPublished
	return nil
}

// Reject marks a product rejected.
func Reject(p *Product) error {
	if err := checkAllowed(p, ActionReject); err != nil {
		return err
	}
	p.Status = StatusRejected
	return nil
}

// ChangeBrand stamps a curated brand without changing status.
func ChangeBrand(p *Product, brand string) error {
	if err := checkAllowed(p, ActionChangeBrand); err != nil {
		return err
	}
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return apperr.Validation("brand", "is required")
	}
	p.curated().BrandName = &brand
	return nil
}

// ChangeCategory stamps a curated category without changing status.
func ChangeCategory(p *Product, category string) error {
	if err := checkAllowed(p, ActionChangeCategory); err != nil {
		return err
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return apperr.Validation("category", "is required")
	}
	p.curated().CategoryName = &category
	return nil
}

// CompleteAI applies an AI verdict to a processing product. Brand and
// category from the verdict are stamped only when present, so earlier
// curated values survive an empty verdict.
func CompleteAI(p *Product, v Verdict) error {
	if err := checkAllowed(p, ActionCompleteAI); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return apperr.FromValidator(err)
	}
	if b := strings.TrimSpace(v.Brand); b != "" {
		p.curated().BrandName = &b
	}
	if c := strings.TrimSpace(v.Category); c != "" {
		p.curated().CategoryName = &c
	}
	if reason := strings.TrimSpace(v.Reason); reason != "" {
		p.curated().Notes = &reason
	}
	score := v.Confidence
	p.ConfidenceScore = &score
	p.Status = v.Outcome
	return nil
}

// Restore reopens a rejected product.
func Restore(p *Product) error {
	if err := checkAllowed(p, ActionRestore); err != nil {
		return err
	}
	p.Status = StatusPending
	return nil
}

// Release hands a processing product back to pending when its AI job fails
// or is cancelled. Curated data already stamped is kept.
func Release(p *Product) error {
	if err := checkAllowed(p, ActionRelease); err != nil {
		return err
	}
	p.Status = StatusPending
	return nil
}

// CheckDelete reports whether p may be removed. Published products are kept
// as provenance for their catalog entry; processing ones belong to a job.
func CheckDelete(p *Product) error {
	return checkAllowed(p, ActionDelete)
}

// Payload carries the optional inputs of an action.
type Payload struct {
	Brand             string   `json:"brand,omitempty"`
	Category          string   `json:"category,omitempty"`
	BrandValidated    *bool    `json:"brand_validated,omitempty"`
	Notes             *string  `json:"curation_notes,omitempty"`
	ConfirmationToken string   `json:"confirmation_token,omitempty"`
	Verdict           *Verdict `json:"verdict,omitempty"`
}

// Apply dispatches action to the matching transition. On error p is left
// exactly as it was.
func Apply(p *Product, action Action, payload Payload) error {
	work := p.Clone()
	var err error
	switch action {
	case ActionSendToAI:
		err = SendToAI(&work)
	case ActionCurateManually:
		err = CurateManually(&work, ManualCuration{
			Brand:          payload.Brand,
			Category:       payload.Category,
			BrandValidated: payload.BrandValidated,
			Notes:          payload.Notes,
		})
	case ActionApprove:
		err = Approve(&work)
	case ActionReject:
		err = Reject(&work)
	case ActionChangeBrand:
		err = ChangeBrand(&work, payload.Brand)
	case ActionChangeCategory:
		err = ChangeCategory(&work, payload.Category)
	case ActionCompleteAI:
		if payload.Verdict == nil {
			if err = checkAllowed(&work, action); err == nil {
				err = apperr.Validation("verdict", "is required")
			}
			break
		}
		err = CompleteAI(&work, *payload.Verdict)
	case ActionRestore:
		err = Restore(&work)
	case ActionRelease:
		err = Release(&work)
	case ActionDelete:
		err = CheckDelete(&work)
	default:
		err = apperr.Validation("action", fmt.Sprintf("unknown action %q", action))
	}
	if err != nil {
		return err
	}
	*p = work
	return nil
}
