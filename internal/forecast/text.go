package forecast

import (
	"fmt"
	"time"

	"github.com/i474232898/bundlecast/internal/common"
)

// leadTime is how long before the slot opens the vendor should post.
const leadTime = time.Hour

func shortDay(d time.Time) string {
	return d.Format("Mon")
}

// recommendation names the day and time to post by. The early slot's
// posting time falls on the previous day.
func recommendation(reserved int, title string, target time.Time, slot Slot) string {
	by := Day(target).Add(time.Duration(slot.Start)*time.Minute - leadTime)
	return fmt.Sprintf("Post %d %s bundles on %s by %s", reserved, title, shortDay(by), ClockOf(by))
}

func rationale(reserved int, title string, target time.Time) string {
	day := shortDay(target)
	return fmt.Sprintf("last %s sold %d %s bundles, therefore you will sell %d this %s", day, reserved, title, reserved, day)
}

// noShowChance is no_shows / (reserved + no_shows) rounded to three decimals,
// and 0 when both are zero.
func noShowChance(reserved, noShows int) float64 {
	total := reserved + noShows
	if total <= 0 {
		return 0
	}
	return common.RoundTo(float64(noShows)/float64(total), 3)
}
