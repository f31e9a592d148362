package normalize

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/formula"
	"fleet_tracker/internal/refdata"
)

// ErrUnknownSchema means the payload matched neither wire schema.
var ErrUnknownSchema = errors.New("normalize: payload matches no known schema")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Normalizer converts wire payloads into fleet.Account, resolving route names
// against reference data and attaching derived duration and consumption
// figures while it is at it.
type Normalizer struct {
	ref    refdata.Provider
	engine *formula.Engine
}

// New returns a normalizer over the given reference data. ref may be nil, in
// which case route names stay empty and derived figures fall back to defaults.
func New(ref refdata.Provider) *Normalizer {
	return &Normalizer{ref: ref, engine: formula.NewEngine(ref)}
}

// Account sniffs the schema and dispatches. Snapshot files carry characters
// under "OfflineData"; push payloads carry them under "characters".
func (n *Normalizer) Account(raw []byte, nickname string) (*fleet.Account, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	var probe struct {
		OfflineData []json.RawMessage `json:"OfflineData"`
		Characters  []json.RawMessage `json:"characters"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("probing payload: %w", err)
	}

	switch {
	case probe.OfflineData != nil:
		return n.File(raw, nickname)
	case probe.Characters != nil:
		return n.Push(raw)
	default:
		return nil, ErrUnknownSchema
	}
}

// File normalizes a client snapshot file. The nickname identifies the source
// account; the file itself does not carry one.
func (n *Normalizer) File(raw []byte, nickname string) (*fleet.Account, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	var snap fileSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	account := &fleet.Account{
		Nickname:   nickname,
		FCData:     make(map[string]fleet.FCInfo, len(snap.FCData)),
		RoutePlans: make(map[string]fleet.RoutePlan, len(snap.SubmarinePointPlans)),
	}

	for _, plan := range snap.SubmarinePointPlans {
		if plan.GUID == "" {
			continue
		}
		account.RoutePlans[plan.GUID] = fleet.RoutePlan{Name: plan.Name, Points: plan.Points}
	}
	for fcID, fc := range snap.FCData {
		if !validID(fcID) {
			continue
		}
		account.FCData[fcID] = fleet.FCInfo{
			Name:        fc.Name,
			Gil:         fc.Gil,
			FCPoints:    fc.FCPoints,
			HolderChara: formatHolder(fc.HolderChara),
		}
	}

	for _, wc := range snap.OfflineData {
		if wc.CID == 0 {
			continue
		}

		char := fleet.Character{
			CID:         wc.CID,
			Name:        wc.Name,
			World:       wc.World,
			FCID:        wc.FCID,
			Gil:         wc.Gil,
			Ceruleum:    wc.Ceruleum,
			RepairKits:  wc.RepairKits,
			NumSubSlots: wc.NumSubSlots,
		}

		enabled := make(map[string]bool, len(wc.EnabledSubs))
		for _, name := range wc.EnabledSubs {
			enabled[name] = true
		}

		for _, ws := range wc.OfflineSubmarineData {
			if ws.ReturnTime <= 0 {
				continue
			}

			detail := wc.AdditionalSubmarineData[ws.Name]
			items := detail.partItemIDs()

			sub := fleet.Submarine{
				Name:          ws.Name,
				Level:         detail.Level,
				CurrentExp:    detail.CurrentExp,
				NextLevelExp:  detail.NextLevelExp,
				Build:         fleet.BuildCode(items),
				Parts:         fleet.PartDisplayNames(items),
				PartItemIDs:   items,
				RoutePoints:   decodeRouteBytes(detail.Points),
				SelectedRoute: detail.SelectedPointPlan,
				ReturnTime:    ws.ReturnTime,
				Enabled:       enabled[ws.Name],
			}
			n.finishSubmarine(&sub, account)
			char.Submarines = append(char.Submarines, sub)
		}

		if len(char.Submarines) > 0 {
			account.Characters = append(account.Characters, char)
		}
	}
	return account, nil
}

// Push normalizes a live plugin payload.
func (n *Normalizer) Push(raw []byte) (*fleet.Account, error) {
	var payload pushPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding push payload: %w", err)
	}

	nickname := payload.Nickname
	if nickname == "" {
		nickname = "Plugin"
	}

	account := &fleet.Account{
		Nickname:   nickname,
		FCData:     make(map[string]fleet.FCInfo, len(payload.FCData)),
		RoutePlans: make(map[string]fleet.RoutePlan, len(payload.RoutePlans)),
	}

	for guid, plan := range payload.RoutePlans {
		account.RoutePlans[guid] = fleet.RoutePlan{Name: plan.Name, Points: plan.Points}
	}
	for fcID, fc := range payload.FCData {
		if !validID(fcID) {
			continue
		}
		account.FCData[fcID] = fleet.FCInfo{
			Name:        fc.Name,
			Gil:         fc.Gil,
			FCPoints:    fc.FCPoints,
			HolderChara: formatHolder(int64(fc.HolderChara)),
		}
	}

	for _, wc := range payload.Characters {
		char := fleet.Character{
			CID:             int64(wc.CID),
			Name:            wc.Name,
			World:           wc.World,
			FCID:            int64(wc.FCID),
			Gil:             wc.Gil,
			Ceruleum:        wc.Ceruleum,
			RepairKits:      wc.RepairKits,
			NumSubSlots:     wc.NumSubSlots,
			DiveCredits:     wc.DiveCredits,
			UnlockedSectors: wc.UnlockedSectors,
		}

		enabled := make(map[string]bool, len(wc.EnabledSubs))
		for _, name := range wc.EnabledSubs {
			enabled[name] = true
		}

		for _, ws := range wc.Submarines {
			if ws.ReturnTime <= 0 {
				continue
			}

			items := ws.partItemIDs()
			rows := make([]int, 0, len(ws.PartRowIDs))
			for _, id := range ws.PartRowIDs {
				if id > 0 {
					rows = append(rows, id)
				}
			}

			sub := fleet.Submarine{
				Name:          ws.Name,
				Level:         ws.Level,
				CurrentExp:    ws.CurrentExp,
				NextLevelExp:  ws.NextLevelExp,
				Build:         fleet.BuildCode(items),
				Parts:         fleet.PartDisplayNames(items),
				PartItemIDs:   items,
				PartRowIDs:    rows,
				RoutePoints:   ws.CurrentRoutePoints,
				SelectedRoute: ws.SelectedRoute,
				ReturnTime:    ws.ReturnTime,
				Enabled:       enabled[ws.Name],
			}
			n.finishSubmarine(&sub, account)
			char.Submarines = append(char.Submarines, sub)
		}

		if len(char.Submarines) > 0 {
			account.Characters = append(account.Characters, char)
		}
	}
	return account, nil
}

// finishSubmarine resolves the route and attaches every derived figure. Live
// route points win over the selected plan's points; the spelled-out route
// name wins over the plan's name.
func (n *Normalizer) finishSubmarine(sub *fleet.Submarine, account *fleet.Account) {
	plan, hasPlan := account.Plan(sub.SelectedRoute)
	if len(sub.RoutePoints) == 0 && hasPlan {
		sub.RoutePoints = plan.Points
	}

	sub.RouteName = refdata.RouteName(n.ref, sub.RoutePoints)
	if sub.RouteName == "" && hasPlan {
		sub.RouteName = plan.Name
	}

	if sub.NextLevelExp > 0 {
		sub.ExpProgress = float64(sub.CurrentExp) / float64(sub.NextLevelExp) * 100
	}

	sub.DurationHours = n.engine.DurationPtr(sub.RoutePoints, durationRows(sub), sub.Level)
	sub.Consumption = n.engine.Consumption(consumptionRows(sub), sub.RoutePoints, sub.DurationHours)
}

// durationRows picks the part rows the duration model runs on: reported row
// ids when all four are present, otherwise rows recovered from the build code.
func durationRows(sub *fleet.Submarine) []int {
	if len(sub.PartRowIDs) == 4 {
		return sub.PartRowIDs
	}
	if rows, ok := formula.ParseBuild(sub.Build); ok {
		return rows[:]
	}
	return nil
}

// consumptionRows converts the reported part item ids for the damage model.
func consumptionRows(sub *fleet.Submarine) []int {
	rows, ok := fleet.PartRowIDs(sub.PartItemIDs)
	if !ok {
		return nil
	}
	return rows
}

// validID reports whether a wire map key parses as a numeric id.
func validID(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func formatHolder(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// decodeRouteBytes unpacks the snapshot's base64 route blob, one sector id
// per byte, zero bytes meaning empty slots.
func decodeRouteBytes(encoded string) []int {
	if encoded == "" {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	points := make([]int, 0, len(decoded))
	for _, b := range decoded {
		if b > 0 {
			points = append(points, int(b))
		}
	}
	if len(points) == 0 {
		return nil
	}
	return points
}
