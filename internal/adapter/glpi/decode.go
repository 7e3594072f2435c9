package glpi

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/fixora/dashboard/internal/domain"
)

// Shape identifies which of the known metrics layouts the backend returned
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeGeneral is {"general": {...}, "by_level": {"N1": {...}}, "trends": {...}}
	ShapeGeneral
	// ShapeNiveis is {"niveis": {"n1": {...}, "geral": {...}}, "tendencias": {...}}
	ShapeNiveis
)

func (s Shape) String() string {
	switch s {
	case ShapeGeneral:
		return "general"
	case ShapeNiveis:
		return "niveis"
	default:
		return "unknown"
	}
}

// envelope is the wrapper around every backend response
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func unwrap(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.ErrMalformedPayload("response is not a JSON envelope", err)
	}
	if env.Success == nil {
		return nil, domain.ErrMalformedPayload("envelope has no success flag", nil)
	}
	if !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = "success=false"
		}
		return nil, domain.ErrBackendFailure(msg)
	}
	if len(bytes.TrimSpace(env.Data)) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return nil, domain.ErrMalformedPayload("envelope has no data", nil)
	}
	return env.Data, nil
}

// count accepts numbers, numeric strings and null. Anything else is zero.
type count int

func (c *count) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			*c = 0
			return nil
		}
		s = strings.TrimSpace(unq)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*c = 0
		return nil
	}
	switch {
	case math.IsNaN(f):
		f = 0
	case f > math.MaxInt32:
		f = math.MaxInt32
	case f < math.MinInt32:
		f = math.MinInt32
	}
	*c = count(f)
	return nil
}

// rawCount lists every spelling the backend uses for the status counters
type rawCount struct {
	Novos      *count `json:"novos"`
	New        *count `json:"new"`
	Opened     *count `json:"opened"`
	Progresso  *count `json:"progresso"`
	InProgress *count `json:"in_progress"`
	Processing *count `json:"processing"`
	Pendentes  *count `json:"pendentes"`
	Pending    *count `json:"pending"`
	Resolvidos *count `json:"resolvidos"`
	Resolved   *count `json:"resolved"`
	Closed     *count `json:"closed"`
	Total      *count `json:"total"`
}

func first(vals ...*count) int {
	for _, v := range vals {
		if v != nil {
			return int(*v)
		}
	}
	return 0
}

func (r rawCount) levelCount() domain.LevelCount {
	return domain.LevelCount{
		Opened:     first(r.Novos, r.New, r.Opened),
		InProgress: first(r.Progresso, r.InProgress, r.Processing),
		Pending:    first(r.Pendentes, r.Pending),
		Resolved:   first(r.Resolvidos, r.Resolved, r.Closed),
		Total:      first(r.Total),
	}
}

type generalPayload struct {
	General *rawCount           `json:"general"`
	ByLevel map[string]rawCount `json:"by_level"`
	Trends  map[string]trend    `json:"trends"`
}

type niveisPayload struct {
	Niveis     map[string]rawCount `json:"niveis"`
	Tendencias map[string]trend    `json:"tendencias"`
	Trends     map[string]trend    `json:"trends"`
}

// trend keeps strings as-is and renders numbers with their JSON text
type trend string

func (t *trend) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = trend(s)
		return nil
	}
	*t = trend(b)
	return nil
}

// DetectShape classifies a metrics payload by its discriminating keys
func DetectShape(data json.RawMessage) (Shape, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return ShapeUnknown, domain.ErrMalformedPayload("metrics payload is not an object", err)
	}
	if _, ok := keys["niveis"]; ok {
		return ShapeNiveis, nil
	}
	_, general := keys["general"]
	_, byLevel := keys["by_level"]
	if general || byLevel {
		return ShapeGeneral, nil
	}

	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	return ShapeUnknown, domain.ErrUnknownShape(fmt.Sprintf("unrecognized metrics keys %v", names))
}

// decoded is the shape-independent intermediate form
type decoded struct {
	shape     Shape
	levels    map[domain.Level]domain.LevelCount
	aggregate *domain.LevelCount
	trends    map[string]trend
	ignored   []string
}

func decodeShape(data json.RawMessage) (decoded, error) {
	shape, err := DetectShape(data)
	if err != nil {
		return decoded{}, err
	}

	out := decoded{shape: shape, levels: make(map[domain.Level]domain.LevelCount)}
	var byLevel map[string]rawCount

	switch shape {
	case ShapeGeneral:
		var p generalPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return decoded{}, domain.ErrMalformedPayload("general/by_level payload", err)
		}
		if p.General != nil {
			agg := p.General.levelCount()
			out.aggregate = &agg
		}
		byLevel = p.ByLevel
		out.trends = p.Trends
	case ShapeNiveis:
		var p niveisPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return decoded{}, domain.ErrMalformedPayload("niveis payload", err)
		}
		byLevel = p.Niveis
		out.trends = p.Tendencias
		if len(out.trends) == 0 {
			out.trends = p.Trends
		}
	}

	for key, raw := range byLevel {
		lvl, ok := domain.ParseLevel(strings.TrimSpace(key))
		if !ok {
			out.ignored = append(out.ignored, key)
			continue
		}
		c := raw.levelCount()
		if lvl == domain.LevelOverall {
			out.aggregate = &c
			continue
		}
		out.levels[lvl] = c
	}
	return out, nil
}

// DecodeMetrics turns a metrics payload of either known shape into a snapshot. The overall level
// is always the sum of the per-level counts; the backend's own aggregate is only used when no
// per-level data was sent. Warnings describe data that was corrected or disagreed.
func DecodeMetrics(data json.RawMessage, now time.Time) (domain.MetricsSnapshot, []string, error) {
	d, err := decodeShape(data)
	if err != nil {
		return domain.MetricsSnapshot{}, nil, err
	}

	var warnings []string
	for _, k := range d.ignored {
		warnings = append(warnings, fmt.Sprintf("ignored unknown level %q", k))
	}

	snap := domain.MetricsSnapshot{
		Levels:      make(map[domain.Level]domain.LevelCount, len(domain.SupportLevels)+1),
		Trends:      make(map[string]string, len(d.trends)),
		GeneratedAt: now,
	}

	var sum domain.LevelCount
	for _, lvl := range domain.SupportLevels {
		c, clamped := d.levels[lvl].Normalize()
		if clamped {
			warnings = append(warnings, fmt.Sprintf("negative counts clamped on level %s", lvl))
		}
		snap.Levels[lvl] = c
		sum = sum.Add(c)
	}

	switch {
	case len(d.levels) > 0:
		snap.Levels[domain.LevelOverall] = sum
		if d.aggregate != nil {
			agg, _ := d.aggregate.Normalize()
			if agg != sum {
				warnings = append(warnings, fmt.Sprintf("backend aggregate %+v differs from per-level sum %+v", agg, sum))
			}
		}
	case d.aggregate != nil:
		agg, clamped := d.aggregate.Normalize()
		if clamped {
			warnings = append(warnings, "negative counts clamped on the aggregate level")
		}
		snap.Levels[domain.LevelOverall] = agg
	default:
		snap.Levels[domain.LevelOverall] = sum
	}

	for k, v := range d.trends {
		if s := strings.TrimSpace(string(v)); s != "" {
			snap.Trends[k] = s
		}
	}
	return snap, warnings, nil
}

type rawRankingEntry struct {
	ID      json.RawMessage `json:"id"`
	Name    string          `json:"name"`
	Nome    string          `json:"nome"`
	Level   string          `json:"level"`
	Nivel   string          `json:"nivel"`
	Total   *count          `json:"total"`
	Score   *count          `json:"score"`
	Tickets *count          `json:"total_tickets"`
}

// DecodeRanking accepts either a bare list or {"ranking": [...]}
func DecodeRanking(data json.RawMessage) ([]domain.TechnicianRankingEntry, error) {
	var raw []rawRankingEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapped struct {
			Ranking []rawRankingEntry `json:"ranking"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil || wrapped.Ranking == nil {
			return nil, domain.ErrMalformedPayload("ranking payload is neither a list nor {ranking}", err)
		}
		raw = wrapped.Ranking
	}

	out := make([]domain.TechnicianRankingEntry, 0, len(raw))
	for _, r := range raw {
		name := r.Name
		if name == "" {
			name = r.Nome
		}
		lvlText := r.Level
		if lvlText == "" {
			lvlText = r.Nivel
		}
		lvl, _ := domain.ParseLevel(strings.TrimSpace(lvlText))
		score := first(r.Total, r.Score, r.Tickets)
		if score < 0 {
			score = 0
		}
		out = append(out, domain.TechnicianRankingEntry{
			ID:    idString(r.ID),
			Name:  name,
			Level: lvl,
			Score: score,
		})
	}
	domain.SortRanking(out)
	return out, nil
}

type rawStatus struct {
	Status     string `json:"status"`
	API        string `json:"api"`
	APIStatus  string `json:"api_status"`
	GLPI       string `json:"glpi"`
	GLPIStatus string `json:"glpi_status"`
	Version    string `json:"version"`
	LastUpdate string `json:"last_update"`
}

// DecodeStatus reads the status payload. Unknown health values are kept verbatim.
func DecodeStatus(data json.RawMessage, now time.Time) (domain.SystemStatus, error) {
	var raw rawStatus
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.SystemStatus{}, domain.ErrMalformedPayload("status payload", err)
	}
	pick := func(a, b string) string {
		if a != "" {
			return strings.ToLower(a)
		}
		if b != "" {
			return strings.ToLower(b)
		}
		return domain.HealthUnknown
	}

	st := domain.SystemStatus{
		Status:     pick(raw.Status, ""),
		APIStatus:  pick(raw.APIStatus, raw.API),
		GLPIStatus: pick(raw.GLPIStatus, raw.GLPI),
		Version:    raw.Version,
		LastUpdate: now,
	}
	if t, ok := parseTime(raw.LastUpdate); ok {
		st.LastUpdate = t
	}
	return st, nil
}

type rawTicket struct {
	ID          json.RawMessage `json:"id"`
	Title       string          `json:"title"`
	Titulo      string          `json:"titulo"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Descricao   string          `json:"descricao"`
	Requester   string          `json:"requester"`
	Solicitante string          `json:"solicitante"`
	Priority    json.RawMessage `json:"priority"`
	Prioridade  json.RawMessage `json:"prioridade"`
	Status      json.RawMessage `json:"status"`
	Date        string          `json:"date"`
	CreatedAt   string          `json:"created_at"`
	Data        string          `json:"data"`
}

// DecodeNewTickets accepts either a bare list or {"tickets": [...]}
func DecodeNewTickets(data json.RawMessage) ([]domain.NewTicket, error) {
	var raw []rawTicket
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapped struct {
			Tickets []rawTicket `json:"tickets"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil || wrapped.Tickets == nil {
			return nil, domain.ErrMalformedPayload("tickets payload is neither a list nor {tickets}", err)
		}
		raw = wrapped.Tickets
	}

	out := make([]domain.NewTicket, 0, len(raw))
	for _, r := range raw {
		t := domain.NewTicket{
			ID:          idString(r.ID),
			Title:       firstString(r.Title, r.Titulo, r.Name),
			Description: firstString(r.Description, r.Descricao),
			Requester:   firstString(r.Requester, r.Solicitante),
			Priority:    domain.ParseTicketPriority(firstString(idString(r.Priority), idString(r.Prioridade))),
			Status:      domain.TicketStatusOpened,
		}
		if s, ok := domain.ParseTicketStatus(idString(r.Status)); ok {
			t.Status = s
		}
		if ts, ok := parseTime(firstString(r.CreatedAt, r.Date, r.Data)); ok {
			t.CreatedAt = ts
		}
		out = append(out, t)
	}
	return out, nil
}

// idString renders a JSON string or number as text
func idString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", domain.DateLayout}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
