package async

// An AsyncMailbox stores AsyncErrors and their associated callbacks
// and invokes them once the AsyncError is completed.
//
// The round orchestrator dispatches reject callbacks and the
// autoscaler feed through a mailbox so a slow framework client never
// blocks the next scheduling round: each delivery runs in its own
// goroutine, and the mailbox's ProcessMessages, called once per
// engine loop iteration, invokes the callback for every delivery that
// has since completed.
//
// A Mailbox is not a concurrent structure and should only
// ever be accessed from a single go routine.  This ensures that the callbacks
// are always executed within the same context and only one at a time.
// A Mailbox for keeping track of in progress AsyncMessages.
// This structure is not thread-safe.
type AsyncMailbox struct {
	msgs []message
}

// The function type of the callback invoked when an AsyncError is Completed
type AsyncErrorResponseHandler func(error)

// async message is a struct composed of an AsyncError
// and its associated callback
type message struct {
	Err      *AsyncError
	callback AsyncErrorResponseHandler
}

func newMessage(cb AsyncErrorResponseHandler) message {
	return message{
		Err:      newAsyncError(),
		callback: cb,
	}
}

func NewAsyncMailbox() *AsyncMailbox {
	return &AsyncMailbox{
		msgs: make([]message, 0),
	}
}

func (bx *AsyncMailbox) Count() int {
	return len(bx.msgs)
}

// Creates a NewAsyncError and associates the supplied callback with it.
// Once the AsyncError has been completed, SetValue called, the callback
// will be invoked on the next execution of ProcessMessages
func (bx *AsyncMailbox) NewAsyncError(cb AsyncErrorResponseHandler) *AsyncError {
	msg := newMessage(cb)
	bx.msgs = append(bx.msgs, msg)
	return msg.Err
}

// Processes the mailbox.  For all messages with completed AsyncErrors
// the callback function and removes the message from the mailbox
func (bx *AsyncMailbox) ProcessMessages() {
	var unCompletedMsgs []message
	for _, msg := range bx.msgs {
		ok, err := msg.Err.TryGetValue()

		// if a AsyncErr's value has been set, invoke the callback
		if ok {
			msg.callback(err)
		} else {
			unCompletedMsgs = append(unCompletedMsgs, msg)
		}
	}

	// reset inProgress messages to unCompletedMsgs only
	bx.msgs = unCompletedMsgs
}
