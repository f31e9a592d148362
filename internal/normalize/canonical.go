package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"fleet_tracker/internal/fleet"
)

// Split breaks an ingestion payload into per-account wire messages. Accepted
// forms: an {"accounts": [...]} envelope, a bare array, or a single account
// object in either wire schema. The second return is the envelope's optional
// timestamp, empty for the other forms.
func Split(raw []byte) ([]json.RawMessage, string, error) {
	raw = bytes.TrimSpace(bytes.TrimPrefix(raw, utf8BOM))
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("splitting payload: empty input")
	}

	if raw[0] == '[' {
		var msgs []json.RawMessage
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return nil, "", fmt.Errorf("splitting payload: %w", err)
		}
		return msgs, "", nil
	}

	var env struct {
		Accounts  []json.RawMessage `json:"accounts"`
		Timestamp string            `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, "", fmt.Errorf("splitting payload: %w", err)
	}
	if env.Accounts != nil {
		return env.Accounts, env.Timestamp, nil
	}
	return []json.RawMessage{json.RawMessage(raw)}, "", nil
}

// Marshal renders accounts as an {"accounts": [...]} envelope in the push
// wire schema. This is the canonical persisted form: normalizing the output
// reproduces the same accounts, so a payload saved after an unlock merge
// still carries the merged sets after a restart.
func Marshal(accounts []*fleet.Account, timestamp string) ([]byte, error) {
	envelope := struct {
		Accounts  []pushPayload `json:"accounts"`
		Timestamp string        `json:"timestamp,omitempty"`
	}{
		Accounts:  make([]pushPayload, 0, len(accounts)),
		Timestamp: timestamp,
	}
	for _, account := range accounts {
		envelope.Accounts = append(envelope.Accounts, toWire(account))
	}
	return json.Marshal(envelope)
}

func toWire(account *fleet.Account) pushPayload {
	payload := pushPayload{
		Nickname:   account.Nickname,
		Characters: make([]pushCharacter, 0, len(account.Characters)),
	}

	if len(account.FCData) > 0 {
		payload.FCData = make(map[string]pushFC, len(account.FCData))
		for id, fc := range account.FCData {
			holder, _ := strconv.ParseInt(fc.HolderChara, 10, 64)
			payload.FCData[id] = pushFC{
				Name:        fc.Name,
				Gil:         fc.Gil,
				FCPoints:    fc.FCPoints,
				HolderChara: FlexInt64(holder),
			}
		}
	}
	if len(account.RoutePlans) > 0 {
		payload.RoutePlans = make(map[string]pushPlan, len(account.RoutePlans))
		for guid, plan := range account.RoutePlans {
			payload.RoutePlans[guid] = pushPlan{Name: plan.Name, Points: plan.Points}
		}
	}

	for i := range account.Characters {
		char := &account.Characters[i]
		wc := pushCharacter{
			CID:             FlexInt64(char.CID),
			Name:            char.Name,
			World:           char.World,
			FCID:            FlexInt64(char.FCID),
			Gil:             char.Gil,
			Ceruleum:        char.Ceruleum,
			RepairKits:      char.RepairKits,
			NumSubSlots:     char.NumSubSlots,
			DiveCredits:     char.DiveCredits,
			UnlockedSectors: char.UnlockedSectors,
			Submarines:      make([]pushSubmarine, 0, len(char.Submarines)),
		}
		for j := range char.Submarines {
			sub := &char.Submarines[j]
			if sub.Enabled {
				wc.EnabledSubs = append(wc.EnabledSubs, sub.Name)
			}
			wc.Submarines = append(wc.Submarines, pushSubmarine{
				Name:               sub.Name,
				ReturnTime:         sub.ReturnTime,
				Level:              sub.Level,
				CurrentExp:         sub.CurrentExp,
				NextLevelExp:       sub.NextLevelExp,
				Part1:              sub.PartItemIDs[0],
				Part2:              sub.PartItemIDs[1],
				Part3:              sub.PartItemIDs[2],
				Part4:              sub.PartItemIDs[3],
				PartRowIDs:         sub.PartRowIDs,
				CurrentRoutePoints: sub.RoutePoints,
				SelectedRoute:      sub.SelectedRoute,
			})
		}
		payload.Characters = append(payload.Characters, wc)
	}
	return payload
}
