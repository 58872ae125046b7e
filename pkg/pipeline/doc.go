// Package pipeline drives a harvesting run: it splits the identifier list into
// fixed-size batches and processes them strictly in order.
//
// Each batch moves through Dispatched → AwaitingAll → Merged → Checkpointed:
//   - one fetch goroutine per identifier, admitted through the shared gate in
//     list order
//   - a barrier waits for every fetch of the batch
//   - outcomes are filtered in list order, audited, and matches are merged into
//     the run state
//   - the whole run state overwrites the checkpoint
//
// After the last batch the run is Completed and the state is written to the
// final output. Cancelling the context stops dispatch; fetches already
// dispatched finish, their batch is still merged and checkpointed, and Run
// returns ErrRunCancelled without writing the final output.
//
// Example usage:
//
//	orch, err := pipeline.New(pipeline.DefaultConfig(), fetcher, filter, store, auditLog)
//	state, err := orch.Run(ctx, ids)
package pipeline
