package async

// An AsyncRunner is a helper class to spawn Go Routines to run
// AsyncFunctions and to associate callbacks with them.  This builds
// ontop of AsyncMailbox to make simplify the code that needs to be written.
//
// The engine uses this to deliver reject/autoscale callbacks off the
// scheduling round's critical path: a slow or blocking callback must
// never stall the round that produced it.
//
//  runner := NewAsyncRunner()
//
//  runner.RunAsync(func() error {
//    return rejectCallback(offer, reason)
//  }, func(err error) {
//    if err != nil {
//      log.WithError(err).Warn("reject callback delivery failed")
//    }
//  })
//
//  // later, on the scheduler's own loop:
//  runner.ProcessMessages()
//
type AsyncRunner struct {
	bx *AsyncMailbox
}

func NewAsyncRunner() AsyncRunner {
	return AsyncRunner{
		bx: NewAsyncMailbox(),
	}
}

// Function that takes no parameters and returns an error
type AsyncFunction func() error

// RunAsync creates a go routine to run the specified function f.
// The callback, cb, is invoked once f is completed by calling ProcessMessages.
func (r *AsyncRunner) RunAsync(f AsyncFunction, cb AsyncErrorResponseHandler) {
	asyncErr := r.bx.NewAsyncError(cb)
	go func(rsp *AsyncError) {
		err := f()
		rsp.SetValue(err)
	}(asyncErr)
}

// Invokes all callbacks of completed asyncfunctions.
// Callbacks are ran synchronously and by the calling go routine
func (r *AsyncRunner) ProcessMessages() {
	r.bx.ProcessMessages()
}
