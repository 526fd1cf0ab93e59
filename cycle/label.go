package cycle

// FormatLabel renders the period for display:
//
//	daily:    "12/18/2024"
//	monthly:  "December 2024"
//	others:   "12/15/2024 - 12/21/2024"
func (c *Calculator) FormatLabel(w Window) string {
	return FormatLabel(w)
}

// FormatLabel is the package-level form of Calculator.FormatLabel; labels do
// not depend on configuration.
func FormatLabel(w Window) string {
	switch {
	case w.Type == Monthly:
		return w.Start.Time().Format("January 2006")
	case w.Start == w.End:
		return usDate(w.Start)
	default:
		return usDate(w.Start) + " - " + usDate(w.End)
	}
}

func usDate(d Date) string { return d.Time().Format("01/02/2006") }
