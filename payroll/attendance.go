package payroll

// =============================================================================
// ATTENDANCE SUMMARY - Monthly aggregates consumed by the variable context
// =============================================================================

// AttendanceSummary aggregates one employee's APPROVED attendance for a
// month into the counters the formula variables are built from.
type AttendanceSummary struct {
	WorkUnits     float64 // Ctt: actual worked units (time records)
	DailyWorkDays float64 // Cn: daily-type work days
	OvertimeHours float64 // weighted by OT rate
	Output        float64 // SL_tt: piecework output

	HolidayDays    float64 // NL
	PaidLeaveDays  float64 // NCD
	ModeLeaveDays  float64 // NCL
	UnpaidDays     float64 // NKL
	WaitingDays    float64 // NCV
}

// SummarizeAttendance folds approved records into monthly aggregates. Hours
// are normalized to 8-hour work units; overtime hours are weighted by their
// OT rate multiplier.
func SummarizeAttendance(records []AttendanceRecord) AttendanceSummary {
	var s AttendanceSummary
	for _, rec := range records {
		if rec.Status != StatusApproved {
			continue
		}
		switch rec.Type {
		case AttendanceTime, AttendancePiecework, AttendanceMode:
			s.WorkUnits += rec.Hours / 8
			if rec.Type == AttendanceMode {
				s.ModeLeaveDays++
			}
		case AttendanceDaily:
			s.DailyWorkDays++
		case AttendanceHoliday:
			s.HolidayDays++
		case AttendancePaidLeave:
			s.PaidLeaveDays++
		case AttendanceUnpaid:
			s.UnpaidDays++
		case AttendanceWaiting:
			s.WaitingDays++
		}

		rate := rec.OTRate
		if rate == 0 {
			rate = OTRateWeekday
		}
		s.OvertimeHours += rec.OvertimeHours * rate
		s.Output += rec.Output
	}
	return s
}

// ValidateAttendance checks a record at the DRAFT -> pending boundary.
// Overtime exceeding worked hours is rejected here, not merely flagged.
func ValidateAttendance(rec *AttendanceRecord) error {
	if rec.Hours < 0 {
		return &ValidationError{Field: "hours", Message: "must not be negative"}
	}
	if rec.OvertimeHours < 0 {
		return &ValidationError{Field: "overtimeHours", Message: "must not be negative"}
	}
	if rec.OvertimeHours > rec.Hours {
		return &ValidationError{Field: "overtimeHours", Message: "exceeds worked hours"}
	}
	switch rec.OTRate {
	case 0, OTRateWeekday, OTRateWeekend, OTRateHoliday:
	default:
		return &ValidationError{Field: "otRate", Message: "must be 1.5, 2.0 or 3.0"}
	}
	if rec.Output < 0 {
		return &ValidationError{Field: "output", Message: "must not be negative"}
	}
	return nil
}
