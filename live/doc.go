/*
Package live contains the real-time side of liveseq: the Sequencer that runs
once per synthesis envelope cycle, the Player session that drives rendering
into an output.Sink, and the narrow crossings between the UI goroutines and the
synthesis goroutine.

The UI never touches the live track set. It commits request batches with
Player.SetRequest, enqueues parameter board changes with
Player.EnqueueParamBoardEntry and polls Player.TakeStatus and Player.MeterLevel
on a timer. Request batches take effect only at loop boundaries; the Sequencer
applies the latest committed batch and discards any earlier ones.

Crossings:
  - track requests and status snapshots use single-slot Mailboxes (atomic
    pointer swap, never blocking);
  - parameter board changes go through a mutex-guarded queue, applied to a
    copy-on-write ordered set whose published version the UI can read at any
    time;
  - each ParamBoardEntry keeps its value and dirty state in one atomically
    swapped snapshot;
  - Broker.ToUI carries alerts and diagnostics, sent without blocking.

Controller bundles the UI-side bookkeeping (staged commands, the last status,
parameter bindings) for the front ends.
*/
package live
