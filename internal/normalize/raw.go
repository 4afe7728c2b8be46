package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/vburojevic/wfsum/internal/domain"
)

// rawEvent is the wire shape of one telemetry line
type rawEvent struct {
	EID   string `json:"eid"`
	ETS   int64  `json:"ets"` // epoch milliseconds
	Actor struct {
		ID string `json:"id"`
	} `json:"actor"`
	Context struct {
		DID     string `json:"did"`
		Channel string `json:"channel"`
		PData   struct {
			ID  string `json:"id"`
			PID string `json:"pid"`
		} `json:"pdata"`
	} `json:"context"`
	EData struct {
		Type     string `json:"type"`
		Mode     string `json:"mode"`
		PageID   string `json:"pageid"`
		PageType string `json:"pagetype"`
		Subtype  string `json:"subtype"`
		Env      string `json:"env"`
		Item     struct {
			ID string `json:"id"`
		} `json:"item"`
		Score float64   `json:"score"`
		Pass  passValue `json:"pass"`
	} `json:"edata"`
}

// passValue accepts both booleans and the "Yes"/"No" strings older clients send
type passValue bool

func (p *passValue) UnmarshalJSON(b []byte) error {
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*p = passValue(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		*p = true
	default:
		*p = false
	}
	return nil
}

func (r *rawEvent) identity() domain.Identity {
	platform := r.Context.PData.ID
	if r.Context.PData.PID != "" {
		platform += ":" + r.Context.PData.PID
	}
	return domain.Identity{
		Actor:    r.Actor.ID,
		Device:   r.Context.DID,
		Channel:  r.Context.Channel,
		Platform: platform,
	}
}

func (r *rawEvent) event() domain.Event {
	name := strings.ToUpper(strings.TrimSpace(r.EID))
	workflowType, interactType := r.EData.Type, r.EData.Subtype
	// INTERACT payloads without a subtype carry the interaction in edata.type
	if name == "INTERACT" && strings.TrimSpace(interactType) == "" {
		workflowType, interactType = "", r.EData.Type
	}
	return domain.Event{
		Kind:         domain.ParseEventKind(name),
		Name:         name,
		Type:         domain.NormalizeType(workflowType),
		Mode:         r.EData.Mode,
		Timestamp:    time.UnixMilli(r.ETS).UTC().Truncate(time.Second),
		PageID:       r.EData.PageID,
		PageType:     r.EData.PageType,
		Env:          r.EData.Env,
		InteractType: strings.ToLower(strings.TrimSpace(interactType)),
		ItemID:       r.EData.Item.ID,
		Score:        r.EData.Score,
		Pass:         bool(r.EData.Pass),
	}
}
