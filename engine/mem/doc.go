/*
Package mem keeps all entities in memory. It is meant for tests and for a daemon, which does not need durability.

	e, err := mem.New(func(o *mem.Options) {
		o.Common.TimerSchedulerEnabled = true
	})

The timer scheduler is disabled by default - tests fire due timers explicitly, using SetTime and ExecuteTimers.
*/
package mem
