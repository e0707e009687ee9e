package trading

// DailyJob adapts the driver to the scheduler's Job interface so the trading
// pass can run on a weekday cron schedule.
type DailyJob struct {
	driver *Driver
}

// NewDailyJob creates the scheduled daily trading job
func NewDailyJob(driver *Driver) *DailyJob {
	return &DailyJob{driver: driver}
}

// Name returns the job name
func (j *DailyJob) Name() string {
	return "daily-trading-pass"
}

// Run executes the trading pass for the current date
func (j *DailyJob) Run() error {
	return j.driver.RunToday()
}
