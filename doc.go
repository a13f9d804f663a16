// Package sender implements a structured asynchronous composition library
// built around a sender/receiver protocol.
//
// A [Sender] describes an asynchronous operation without starting one. It is
// bound to a [Receiver] via [Sender.Connect], producing an [Op]; calling
// Op.Start drives the operation to completion, delivering exactly one
// signal — a value, an error, or cancellation ("done") — to the receiver.
//
// Composition adapters ([Then], [LetValue], [WhenAll2], [StopWhen],
// [RepeatEffectUntil], [RetryWhen], [DetachOnCancel]) consume one or more
// child senders and produce a new sender, without starting any work. A
// computation built this way is started exactly once, typically via
// [SyncWait] or by spawning it into an [AsyncScope].
//
// Cancellation is cooperative and token-driven: see [StopSource] and
// [StopToken]. It is never implicit — an operation only observes
// cancellation if it subscribes a callback to the token reachable via its
// receiver's StopToken method.
package sender
