package accounts

import "time"

// IsWithinThresholdPeriod reports whether t falls inside the trailing
// window described by thresholdExpr (a time.ParseDuration string).
func IsWithinThresholdPeriod(t time.Time, thresholdExpr string) (bool, error) {
	d, err := time.ParseDuration(thresholdExpr)
	if err != nil {
		return false, err
	}

	threshold := time.Now().Add(-d)
	return t.After(threshold), nil
}

// IsOutsideThresholdPeriod is the complement of IsWithinThresholdPeriod
func IsOutsideThresholdPeriod(t time.Time, thresholdExpr string) (bool, error) {
	within, err := IsWithinThresholdPeriod(t, thresholdExpr)
	if err != nil {
		return false, err
	}
	return !within, nil
}
