package queue

// CountAhead returns how many active tokens will be served before the given
// token. Emergency tokens only queue behind smaller emergency tokens; normal
// tokens queue behind smaller normal tokens and every active emergency token.
// day must hold the appointments of one doctor on one date.
func CountAhead(day []*Appointment, tokenNumber int, emergency bool) int {
	ahead := 0
	for _, a := range day {
		if !a.State.Active() {
			continue
		}
		switch {
		case a.IsEmergency && emergency:
			if a.TokenNumber < tokenNumber {
				ahead++
			}
		case a.IsEmergency:
			ahead++
		case !emergency:
			if a.TokenNumber < tokenNumber {
				ahead++
			}
		}
	}
	return ahead
}

// EstimateWait converts the tokens ahead into seconds at the doctor's consult pace.
func EstimateWait(day []*Appointment, tokenNumber int, emergency bool, consultMinutes int) int {
	return CountAhead(day, tokenNumber, emergency) * consultMinutes * 60
}
