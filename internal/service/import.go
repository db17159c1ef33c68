package service

import (
	"context"
	"device-loan-api/internal/model"
	"device-loan-api/internal/repository"
	"device-loan-api/pkg/errors"
	"device-loan-api/pkg/logger"
	"device-loan-api/pkg/metrics"
	"device-loan-api/pkg/validation"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ImportService replaces the stored state with a previously exported snapshot
type ImportService struct {
	restore     repository.RestoreRepository
	emailDomain string
	loc         *time.Location
	metrics     *metrics.LedgerMetrics
	logger      *logger.Logger
}

// NewImportService creates an import service. emailDomain is used to derive
// an address for history rows that carry none; loc must match the export.
func NewImportService(restore repository.RestoreRepository, emailDomain string, loc *time.Location, m *metrics.LedgerMetrics, log *logger.Logger) *ImportService {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ImportService{
		restore:     restore,
		emailDomain: strings.ToLower(strings.TrimSpace(emailDomain)),
		loc:         loc,
		metrics:     m,
		logger:      log,
	}
}

// Import resolves the snapshot into a restore plan and applies it in one
// transaction. A snapshot missing any section is rejected without writes.
// Rows that cannot be resolved are skipped and reported as warnings.
func (s *ImportService) Import(ctx context.Context, snap model.Snapshot) (*model.ImportSummary, error) {
	var missing []string
	if snap.OnLoan == nil {
		missing = append(missing, "on_loan")
	}
	if snap.Inventory == nil {
		missing = append(missing, "inventory")
	}
	if snap.History == nil {
		missing = append(missing, "history")
	}
	if len(missing) > 0 {
		s.metrics.IncImport("rejected")
		return nil, errors.ValidationError("snapshot is missing required sections").
			WithDetail("missing_sections", missing)
	}

	plan, summary, warnings := s.buildPlan(snap)

	if err := s.restore.Restore(ctx, plan); err != nil {
		s.metrics.IncImport("failed")
		if stderrors.Is(err, repository.ErrDuplicateDevice) || stderrors.Is(err, repository.ErrDeviceOnLoan) {
			return nil, errors.ConflictError("snapshot could not be applied").WithDetail("reason", err.Error())
		}
		return nil, errors.DatabaseError("failed to import snapshot", err)
	}

	for _, w := range multierr.Errors(warnings) {
		summary.Warnings = append(summary.Warnings, w.Error())
	}
	s.metrics.IncImport("applied")
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"devices":   summary.Devices,
		"borrowers": summary.Borrowers,
		"loans":     summary.Loans,
		"skipped":   summary.Skipped,
	}), "snapshot.imported")

	return summary, nil
}

func pairKey(rubricID, suffixID string) string {
	return rubricID + "\x00" + suffixID
}

// planBuilder accumulates the restore plan and the index maps used to link
// history rows back to imported devices and borrowers.
type planBuilder struct {
	plan          model.RestorePlan
	summary       model.ImportSummary
	warnings      error
	byPair        map[string]int
	byLabel       map[string]int
	borrowerByKey map[string]int
	openByDevice  map[int]bool
}

func (b *planBuilder) skip(format string, args ...any) {
	b.summary.Skipped++
	b.warn(format, args...)
}

func (b *planBuilder) warn(format string, args ...any) {
	b.warnings = multierr.Append(b.warnings, fmt.Errorf(format, args...))
}

func (s *ImportService) buildPlan(snap model.Snapshot) (model.RestorePlan, *model.ImportSummary, error) {
	b := &planBuilder{
		byPair:        map[string]int{},
		byLabel:       map[string]int{},
		borrowerByKey: map[string]int{},
		openByDevice:  map[int]bool{},
	}

	for i, row := range snap.Inventory {
		d := model.NewDevice{
			RubricID: strings.TrimSpace(row.RubricID),
			SuffixID: strings.TrimSpace(row.SuffixID),
			Category: strings.TrimSpace(row.Category),
		}
		if d.RubricID == "" || d.SuffixID == "" {
			b.skip("inventory row %d: rubric and suffix are required", i+1)
			continue
		}
		key := pairKey(d.RubricID, d.SuffixID)
		if _, dup := b.byPair[key]; dup {
			b.skip("inventory row %d: duplicate device %s", i+1, model.DeviceLabel(d.RubricID, d.SuffixID))
			continue
		}
		if d.Category == "" {
			d.Category = "Other"
		}
		idx := len(b.plan.Devices)
		b.plan.Devices = append(b.plan.Devices, d)
		b.byPair[key] = idx

		label := model.DeviceLabel(d.RubricID, d.SuffixID)
		if _, seen := b.byLabel[label]; seen {
			b.byLabel[label] = model.NoDevice
		} else {
			b.byLabel[label] = idx
		}
	}

	for i, row := range snap.History {
		s.addHistoryRow(b, i+1, row)
	}

	for i, row := range snap.OnLoan {
		idx, ok := b.resolveDevice(row.RubricID, row.SuffixID, row.Label)
		if !ok || !b.openByDevice[idx] {
			b.warn("on_loan row %d: %s has no open loan in history; the history wins", i+1, rowLabel(row.RubricID, row.SuffixID, row.Label))
		}
	}

	for i, row := range snap.Inventory {
		idx, ok := b.byPair[pairKey(strings.TrimSpace(row.RubricID), strings.TrimSpace(row.SuffixID))]
		if !ok {
			continue
		}
		derived := model.StatusAvailable
		if b.openByDevice[idx] {
			derived = model.StatusOnLoan
		}
		if status := strings.TrimSpace(row.Status); status != "" && !strings.EqualFold(status, derived) {
			b.warn("inventory row %d: status %q differs from the history, using %q", i+1, status, derived)
		}
	}

	b.summary.Devices = len(b.plan.Devices)
	b.summary.Borrowers = len(b.plan.Borrowers)
	b.summary.Loans = len(b.plan.Loans)
	return b.plan, &b.summary, b.warnings
}

func (s *ImportService) addHistoryRow(b *planBuilder, n int, row model.HistoryRow) {
	label := rowLabel(row.RubricID, row.SuffixID, row.Label)

	loanedAt, err := parseStamp(strings.TrimSpace(row.LoanDate), strings.TrimSpace(row.LoanTime), s.loc)
	if err != nil {
		b.skip("history row %d (%s): malformed loan date", n, label)
		return
	}

	var returnedAt *time.Time
	returnDate := strings.TrimSpace(row.ReturnDate)
	if returnDate != "" && returnDate != model.NotReturned {
		t, err := parseStamp(returnDate, strings.TrimSpace(row.ReturnTime), s.loc)
		if err != nil {
			b.skip("history row %d (%s): malformed return date", n, label)
			return
		}
		if t.Before(loanedAt) {
			b.skip("history row %d (%s): returned before it was loaned", n, label)
			return
		}
		returnedAt = &t
	}
	if status := strings.TrimSpace(row.Status); status != "" {
		want := model.StatusOnLoan
		if returnedAt != nil {
			want = model.StatusReturned
		}
		if !strings.EqualFold(status, want) {
			b.warn("history row %d (%s): status %q differs from the return date, using %q", n, label, status, want)
		}
	}

	deviceIdx, found := b.resolveDevice(row.RubricID, row.SuffixID, row.Label)
	snapshot := model.NewDevice{
		RubricID: strings.TrimSpace(row.RubricID),
		SuffixID: strings.TrimSpace(row.SuffixID),
		Category: strings.TrimSpace(row.Category),
	}
	switch {
	case found:
		snapshot = b.plan.Devices[deviceIdx]
	case returnedAt != nil && snapshot.RubricID != "" && snapshot.SuffixID != "":
		// the device was deleted before the export; keep the record unlinked
		deviceIdx = model.NoDevice
		if snapshot.Category == "" {
			snapshot.Category = "Other"
		}
	default:
		b.skip("history row %d (%s): device not found in inventory", n, label)
		return
	}

	if returnedAt == nil {
		if b.openByDevice[deviceIdx] {
			b.skip("history row %d (%s): device already has an open loan", n, label)
			return
		}
	}

	borrowerIdx, err := s.resolveBorrower(b, row.Borrower, row.Email)
	if err != nil {
		b.skip("history row %d (%s): %v", n, label, err)
		return
	}

	if returnedAt == nil {
		b.openByDevice[deviceIdx] = true
		b.summary.OpenLoans++
	}
	b.plan.Loans = append(b.plan.Loans, model.RestoreLoan{
		DeviceIndex:   deviceIdx,
		Device:        snapshot,
		BorrowerIndex: borrowerIdx,
		LoanedAt:      loanedAt,
		ReturnedAt:    returnedAt,
	})
}

// resolveDevice links a row to an imported device by its (rubric, suffix)
// pair, falling back to an exact, unambiguous label match.
func (b *planBuilder) resolveDevice(rubricID, suffixID, label string) (int, bool) {
	rubricID, suffixID = strings.TrimSpace(rubricID), strings.TrimSpace(suffixID)
	if rubricID != "" && suffixID != "" {
		idx, ok := b.byPair[pairKey(rubricID, suffixID)]
		return idx, ok
	}
	idx, ok := b.byLabel[strings.TrimSpace(label)]
	if !ok || idx == model.NoDevice {
		return 0, false
	}
	return idx, true
}

// resolveBorrower finds or adds the borrower for a history row. The email is
// the identity; rows without a usable one get an address derived from the
// display name. Rows that land on a borrower with a different name are
// either given their own derived address or merged with a warning.
func (s *ImportService) resolveBorrower(b *planBuilder, fullName, email string) (int, error) {
	first, last := splitName(fullName)
	if first == "" {
		return 0, fmt.Errorf("borrower name is missing")
	}

	email = validation.NormalizeEmail(email)
	if email != "" && validation.ValidateEmail(email, nil) != nil {
		b.warn("borrower %s: invalid email %q replaced with a derived address", fullName, email)
		email = ""
	}

	if email != "" {
		if idx, ok := b.borrowerByKey[email]; ok {
			if existing := b.plan.Borrowers[idx]; !sameName(existing, first, last) {
				b.warn("borrower %s: merged into %s %s, who has the same email %s", fullName, existing.FirstName, existing.LastName, email)
			}
			return idx, nil
		}
		return b.addBorrower(email, first, last), nil
	}

	derived := deriveEmail(first, last, s.emailDomain)
	candidate := derived
	for n := 2; ; n++ {
		idx, ok := b.borrowerByKey[candidate]
		if !ok {
			break
		}
		if sameName(b.plan.Borrowers[idx], first, last) {
			return idx, nil
		}
		candidate = disambiguate(derived, first, last, n)
	}
	if candidate != derived {
		b.warn("borrower %s: derived address %s is taken by another name, using %s", fullName, derived, candidate)
	}
	return b.addBorrower(candidate, first, last), nil
}

func (b *planBuilder) addBorrower(email, first, last string) int {
	idx := len(b.plan.Borrowers)
	b.plan.Borrowers = append(b.plan.Borrowers, model.Borrower{Email: email, FirstName: first, LastName: last})
	b.borrowerByKey[email] = idx
	return idx
}

func sameName(b model.Borrower, first, last string) bool {
	return strings.EqualFold(b.FirstName, first) && strings.EqualFold(b.LastName, last)
}

// splitName splits a display name at its first space into first and last name
func splitName(fullName string) (string, string) {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// deriveEmail builds first.last@domain from ASCII slugs of the name. When
// the slugs lose letters, a hash of the full name keeps the address unique
// to that name.
func deriveEmail(first, last, domain string) string {
	firstSlug, firstLossy := emailSlug(first)
	lastSlug, lastLossy := emailSlug(last)

	local := firstSlug
	if lastSlug != "" {
		if local != "" {
			local += "."
		}
		local += lastSlug
	}
	if local == "" {
		local = "borrower"
	}
	if firstLossy || lastLossy {
		local += "-" + nameHash(first, last)
	}
	return local + "@" + domain
}

// disambiguate gives a derived address that collides with another name a
// hash suffix, then a counter on the rare hash collision.
func disambiguate(derived, first, last string, attempt int) string {
	at := strings.LastIndexByte(derived, '@')
	local, domain := derived[:at], derived[at:]
	suffix := "-" + nameHash(first, last)
	if attempt > 2 {
		suffix += fmt.Sprintf("-%d", attempt-1)
	}
	return local + suffix + domain
}

func nameHash(first, last string) string {
	name := strings.ToLower(strings.TrimSpace(first + " " + last))
	return fmt.Sprintf("%08x", uint32(xxhash.Sum64String(name)))
}

// emailSlug lower-cases s, strips diacritics and keeps ASCII letters and
// digits, joining words with '-'. lossy reports dropped letters or digits.
func emailSlug(s string) (slug string, lossy bool) {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}

	var sb strings.Builder
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
		case r == '-' || r == '\'' || unicode.IsSpace(r):
			if sb.Len() > 0 {
				sb.WriteByte('-')
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			lossy = true
		}
	}
	return strings.Trim(sb.String(), "-"), lossy
}

func rowLabel(rubricID, suffixID, label string) string {
	if l := strings.TrimSpace(label); l != "" {
		return l
	}
	return model.DeviceLabel(strings.TrimSpace(rubricID), strings.TrimSpace(suffixID))
}
