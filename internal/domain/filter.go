package domain

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used by the backend
const DateLayout = "2006-01-02"

// Query parameter names understood by the backend
const (
	ParamStartDate  = "start_date"
	ParamEndDate    = "end_date"
	ParamLevel      = "level"
	ParamStatus     = "status"
	ParamPriority   = "priority"
	ParamTechnician = "technician"
	ParamLimit      = "limit"
)

// FilterParams addresses cache entries and parameterizes backend requests
type FilterParams struct {
	StartDate  string            `json:"start_date,omitempty"`
	EndDate    string            `json:"end_date,omitempty"`
	Level      string            `json:"level,omitempty"`
	Status     string            `json:"status,omitempty"`
	Priority   string            `json:"priority,omitempty"`
	Technician string            `json:"technician,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// DateRange is an inclusive range of calendar dates
type DateRange struct {
	Start string `json:"start_date"`
	End   string `json:"end_date"`
}

// NewDateRange builds a range from two times, truncated to calendar dates
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: start.Format(DateLayout), End: end.Format(DateLayout)}
}

// LastDays returns the range covering the n days up to and including now
func LastDays(now time.Time, n int) DateRange {
	if n < 1 {
		n = 1
	}
	return NewDateRange(now.AddDate(0, 0, -(n - 1)), now)
}

// WithDateRange returns a copy of p using the given range
func (p FilterParams) WithDateRange(r DateRange) FilterParams {
	out := p.Clone()
	out.StartDate = r.Start
	out.EndDate = r.End
	return out
}

// Clone returns a deep copy
func (p FilterParams) Clone() FilterParams {
	out := p
	if p.Extra != nil {
		out.Extra = make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Validate checks date formats and ordering
func (p FilterParams) Validate() error {
	var start, end time.Time
	var err error

	if p.StartDate != "" {
		if start, err = time.Parse(DateLayout, p.StartDate); err != nil {
			return ErrInvalidDate
		}
	}
	if p.EndDate != "" {
		if end, err = time.Parse(DateLayout, p.EndDate); err != nil {
			return ErrInvalidDate
		}
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return ErrInvalidDateRange
	}
	if p.Level != "" {
		if _, ok := ParseLevel(p.Level); !ok {
			return ErrInvalidLevel
		}
	}
	if p.Limit < 0 {
		return NewDomainError("limit must not be negative")
	}
	return nil
}

// Query returns the backend query parameters. Empty fields are omitted and the date range is
// always emitted under start_date/end_date, overriding anything of the same name in Extra.
func (p FilterParams) Query() url.Values {
	q := url.Values{}
	for k, v := range p.Extra {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		q.Set(k, v)
	}

	set := func(k, v string) {
		v = strings.TrimSpace(v)
		if v != "" {
			q.Set(k, v)
		}
	}
	if lvl, ok := ParseLevel(strings.TrimSpace(p.Level)); ok {
		set(ParamLevel, string(lvl))
	} else {
		set(ParamLevel, p.Level)
	}
	set(ParamStatus, p.Status)
	set(ParamPriority, p.Priority)
	set(ParamTechnician, p.Technician)
	if p.Limit > 0 {
		q.Set(ParamLimit, strconv.Itoa(p.Limit))
	}

	// date range wins over any Extra entry with the same name
	q.Del(ParamStartDate)
	q.Del(ParamEndDate)
	set(ParamStartDate, p.StartDate)
	set(ParamEndDate, p.EndDate)

	return q
}

// CacheKey is the canonical serialized form of p. Keys are sorted, so two filter sets that differ
// only in the order their entries were added produce the same key.
func (p FilterParams) CacheKey() string {
	return p.Query().Encode()
}

// IsEmpty reports whether no filter is set
func (p FilterParams) IsEmpty() bool {
	return len(p.Query()) == 0
}
