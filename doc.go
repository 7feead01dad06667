// Package zipalign aligns the stored entries of ZIP archives, such as
// Android APKs, and verifies existing archives.
//
// An entry kept without compression can be memory-mapped straight out of
// the archive when its data starts on a suitable boundary. Alignment pads
// the local header extra field of every stored entry so its data begins at
// a multiple of the requested alignment (4 bytes by default). Entry data,
// compressed or not, is copied byte for byte, as are names, CRCs and sizes.
// Local and central headers are rebuilt from the central directory, so
// general-purpose flags and DOS timestamps are normalised, and the central
// directory never carries the padding.
//
// # Quick Start
//
// Align an archive and wait for the result:
//
//	res, err := zipalign.AlignFile(ctx, "app.apk", "app-aligned.apk")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Padding, "bytes of padding")
//
// Verify a local or remote archive:
//
//	report, err := zipalign.Verify(ctx, "https://example.com/app.apk",
//	    zipalign.WithAlignment(4),
//	)
//
// # Tasks
//
// [StartAlign] and [StartVerify] run in the background and report progress
// on a channel that ends with exactly one terminal event:
//
//	task := zipalign.StartAlign(ctx, "app.apk", "out.apk")
//	for ev := range task.Events() {
//	    fmt.Printf("%3.0f%% %s\n", ev.Percent, ev.Stage)
//	}
//	res, err := task.Wait()
//
// For byte-level access without paths or URLs, use the core subpackage.
package zipalign
