// Package mobile encodes and decodes the delimited text protocol spoken by
// the mobile client. Records are separated by '|' and fields by ','.
package mobile

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"expensehub/internal/core"
)

const (
	RecordSep = "|"
	FieldSep  = ","

	// MinFields is the number of comma-separated fields in an expense record.
	MinFields = 8
)

// Field positions within an expense record. Position 3 is a legacy
// personal/official marker that the server ignores.
const (
	fieldToken = iota
	fieldLocation
	fieldAmount
	fieldUnused
	fieldProject
	fieldCategory
	fieldBillID
	fieldTimestamp
)

var (
	ErrEmptyPayload  = errors.New("empty payload")
	ErrTooFewFields  = fmt.Errorf("record has fewer than %d fields", MinFields)
	ErrBadTimestamp  = errors.New("invalid unix timestamp")
	ErrEmptyTokenKey = errors.New("empty token key")
)

// Record is one expense as sent by the client, before titles are resolved.
type Record struct {
	TokenKey string
	Location string
	Amount   core.Money
	Project  string
	Category string
	BillID   string
	Time     time.Time
}

// Billed reports whether the client supplied a bill id.
func (r Record) Billed() bool { return r.BillID != "" }

// ParseBatch splits q into records and parses each one. The returned error
// is a *core.RecordError wrapping core.ErrValidation for the first malformed
// record.
func ParseBatch(q string) ([]Record, error) {
	if strings.TrimSpace(q) == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrEmptyPayload)
	}
	raw := strings.Split(q, RecordSep)
	out := make([]Record, 0, len(raw))
	for i, r := range raw {
		rec, err := ParseRecord(r)
		if err != nil {
			return nil, &core.RecordError{Index: i, Err: err}
		}
		out = append(out, rec)
	}
	return out, nil
}

// ParseRecord parses a single comma-separated expense record. Extra trailing
// fields are ignored.
func ParseRecord(s string) (Record, error) {
	f := strings.Split(s, FieldSep)
	if len(f) < MinFields {
		return Record{}, fmt.Errorf("%w: %w", core.ErrValidation, ErrTooFewFields)
	}
	for i := range f {
		f[i] = strings.TrimSpace(f[i])
	}

	if f[fieldToken] == "" {
		return Record{}, fmt.Errorf("%w: %w", core.ErrValidation, ErrEmptyTokenKey)
	}
	amount, err := core.ParseMoney(f[fieldAmount])
	if err != nil {
		return Record{}, fmt.Errorf("%w: amount %q: %w", core.ErrValidation, f[fieldAmount], err)
	}
	at, err := parseUnix(f[fieldTimestamp])
	if err != nil {
		return Record{}, fmt.Errorf("%w: timestamp %q: %w", core.ErrValidation, f[fieldTimestamp], err)
	}

	return Record{
		TokenKey: f[fieldToken],
		Location: f[fieldLocation],
		Amount:   amount,
		Project:  f[fieldProject],
		Category: f[fieldCategory],
		BillID:   f[fieldBillID],
		Time:     at,
	}, nil
}

func parseUnix(s string) (time.Time, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return time.Time{}, ErrBadTimestamp
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
}

// EncodeAck renders the acknowledgement sent after an upload: the decimal
// number of expenses persisted.
func EncodeAck(n int) string {
	return strconv.Itoa(n)
}

// SyncData is everything the client needs to bootstrap or refresh.
type SyncData struct {
	UserID     int64
	TokenKey   string
	Projects   []core.Project
	Categories []core.Category
	Locations  []core.Location
	LastBillID string
}

// EncodeSyncBlob renders
//
//	uid|token|project titles|project ids|category titles|location titles|last bill id
//
// with comma separated lists.
func EncodeSyncBlob(d SyncData) string {
	titles := make([]string, len(d.Projects))
	ids := make([]string, len(d.Projects))
	for i, p := range d.Projects {
		titles[i] = p.Title
		ids[i] = strconv.FormatInt(p.ID, 10)
	}
	cats := make([]string, len(d.Categories))
	for i, c := range d.Categories {
		cats[i] = c.Title
	}
	locs := make([]string, len(d.Locations))
	for i, l := range d.Locations {
		locs[i] = l.Title
	}

	return strings.Join([]string{
		strconv.FormatInt(d.UserID, 10),
		d.TokenKey,
		strings.Join(titles, FieldSep),
		strings.Join(ids, FieldSep),
		strings.Join(cats, FieldSep),
		strings.Join(locs, FieldSep),
		d.LastBillID,
	}, RecordSep)
}
