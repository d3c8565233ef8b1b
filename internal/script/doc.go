// Package script is the event-side surface a sequencer script works with.
//
// A Context owns one process variable Scheduler plus every subscription and
// periodic publisher the script creates, and tears all of them down in Close:
//
//	sc := script.New(bus, pv.Options{Logger: log})
//	defer sc.Close(ctx)
//
//	temp, err := script.ParamVariable(ctx, sc, 10, "esw.test.temp", params.IntKey("value"), 0)
//	sub, err := sc.OnEvent(ctx, func(ctx context.Context, ev event.Event) error {
//	    return nil
//	}, "tcs.mount.position")
package script
