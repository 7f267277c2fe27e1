package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "repod/pkg/logx"
)

// Expressions follow the Quartz layout:
//
//	sec min hour day-of-month month day-of-week [year]
//
// '?' is accepted as '*'. Day-of-week numbers are 1-7 for SUN-SAT, names work
// as well. The L, W and # modifiers are not supported. Descriptors such as
// "@hourly" or "@every 90s" are accepted too.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

const (
	minYear = 1970
	maxYear = 2099
)

// ParseCron validates expr and returns its schedule.
// Failures are always *CronValidationError.
func ParseCron(expr string) (cron.Schedule, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return nil, &CronValidationError{Expr: expr, Reason: "empty expression"}
	}
	if strings.HasPrefix(raw, "@") {
		sched, err := cronParser.Parse(raw)
		if err != nil {
			return nil, &CronValidationError{Expr: expr, Err: err}
		}
		return sched, nil
	}

	fields := strings.Fields(raw)
	if len(fields) != 6 && len(fields) != 7 {
		return nil, &CronValidationError{Expr: expr,
			Reason: fmt.Sprintf("expected 6 or 7 fields (sec min hour day-of-month month day-of-week [year]), got %d", len(fields))}
	}
	if strings.ContainsAny(strings.ToUpper(fields[3]), "LW") {
		return nil, &CronValidationError{Expr: expr, Reason: "day-of-month modifiers L and W are not supported"}
	}
	if strings.ContainsAny(strings.ToUpper(fields[5]), "L#") {
		return nil, &CronValidationError{Expr: expr, Reason: "day-of-week modifiers L and # are not supported"}
	}
	dow, err := quartzDow(fields[5])
	if err != nil {
		return nil, &CronValidationError{Expr: expr, Err: err}
	}
	fields[5] = dow

	sched, err := cronParser.Parse(strings.Join(fields[:6], " "))
	if err != nil {
		return nil, &CronValidationError{Expr: expr, Err: err}
	}
	if len(fields) == 7 && fields[6] != "*" && fields[6] != "?" {
		years, last, err := parseYears(fields[6])
		if err != nil {
			return nil, &CronValidationError{Expr: expr, Err: err}
		}
		return &yearSchedule{inner: sched, years: years, last: last}, nil
	}
	return sched, nil
}

// ValidateCron reports whether expr is a valid expression.
func ValidateCron(expr string) error {
	_, err := ParseCron(expr)
	return err
}

// NextFireTimes previews the next n fire times after from.
func NextFireTimes(expr string, from time.Time, n int) ([]time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

// quartzDow rewrites numeric day-of-week values from 1-7 (SUN-SAT) to 0-6.
func quartzDow(field string) (string, error) {
	parts := strings.Split(field, ",")
	for i, part := range parts {
		rng, step, hasStep := strings.Cut(part, "/")
		bounds := strings.Split(rng, "-")
		for j, b := range bounds {
			n, err := strconv.Atoi(b)
			if err != nil {
				continue // '*', '?' or a name
			}
			if n < 1 || n > 7 {
				return "", fmt.Errorf("day-of-week %d out of range 1-7", n)
			}
			bounds[j] = strconv.Itoa(n - 1)
		}
		parts[i] = strings.Join(bounds, "-")
		if hasStep {
			parts[i] += "/" + step
		}
	}
	return strings.Join(parts, ","), nil
}

func parseYears(field string) (*[maxYear - minYear + 1]bool, int, error) {
	var set [maxYear - minYear + 1]bool
	last := 0
	for _, part := range strings.Split(field, ",") {
		rng, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return nil, 0, fmt.Errorf("invalid year step %q", stepStr)
			}
			step = n
		}
		lo, hi := minYear, maxYear
		if rng != "*" && rng != "?" {
			a, b, isRange := strings.Cut(rng, "-")
			var err error
			if lo, err = strconv.Atoi(a); err != nil {
				return nil, 0, fmt.Errorf("invalid year %q", a)
			}
			hi = lo
			if isRange {
				if hi, err = strconv.Atoi(b); err != nil {
					return nil, 0, fmt.Errorf("invalid year %q", b)
				}
			} else if hasStep {
				hi = maxYear
			}
		}
		if lo < minYear || hi > maxYear || lo > hi {
			return nil, 0, fmt.Errorf("year range %d-%d outside %d-%d", lo, hi, minYear, maxYear)
		}
		for y := lo; y <= hi; y += step {
			set[y-minYear] = true
			last = max(last, y)
		}
	}
	return &set, last, nil
}

// yearSchedule restricts a schedule to a set of years.
type yearSchedule struct {
	inner cron.Schedule
	years *[maxYear - minYear + 1]bool
	last  int
}

func (s *yearSchedule) Next(t time.Time) time.Time {
	for {
		n := s.inner.Next(t)
		if n.IsZero() || n.Year() > s.last {
			return time.Time{}
		}
		if y := n.Year(); y >= minYear && s.years[y-minYear] {
			return n
		}
		// Skip the rest of the year instead of walking every fire time in it.
		t = time.Date(n.Year()+1, time.January, 1, 0, 0, 0, 0, n.Location()).Add(-time.Nanosecond)
	}
}

// cronLogger adapts logx to cron.Logger for cron.Recover.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
