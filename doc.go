// Package marker submits PDF documents to a remote extraction service and
// memoizes the structured results by content hash.
//
// The workflow is submit-poll-cache: an upload is hashed, the result cache
// is consulted, and on a miss the document is submitted to the remote
// service, whose asynchronous job is polled at a fixed interval until it
// completes. Identical bytes are never extracted twice.
//
// [Client] talks to the remote service directly; [Processor] runs the full
// workflow for one upload, including transient storage and cleanup.
//
// # Quick Start
//
// Process an upload end to end:
//
//	client, err := marker.NewClient(os.Getenv("DATALAB_API_KEY"))
//	if err != nil {
//	    return err
//	}
//	results, err := disk.New("cache")
//	if err != nil {
//	    return err
//	}
//	proc, err := marker.NewProcessor(client, marker.ProcessorConfig{
//	    Cache:     results,
//	    UploadDir: "temp_uploads",
//	})
//	if err != nil {
//	    return err
//	}
//	res, err := proc.Process(ctx, "report.pdf", file)
//
// # Polling
//
// Jobs are polled at a fixed interval (default 2 seconds) up to a fixed
// attempt budget (default 300), so the worst-case wait is deterministic.
// Tune with [WithPollInterval] and [WithMaxPolls]. A budget exhausted
// without completion yields [ErrPollTimeout].
//
// # Caching
//
// Results are stored as JSON keyed by the document's content digest; the
// cache/disk package provides the filesystem implementation. Only
// successful extractions are cached, and entries expire by age during the
// per-request sweep.
package marker
