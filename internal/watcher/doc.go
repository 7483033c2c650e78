// Package watcher reports filesystem changes under a set of watched paths.
//
// On Linux it is a thin layer over inotify: one monitor goroutine blocks in
// poll(2) on the inotify descriptor and an eventfd used only to wake it for
// shutdown. Events are delivered to the callback synchronously on that
// goroutine, in the order the kernel reports them, so the callback must not
// block and must not call Stop.
//
// A Watcher moves from created to running on Start and to stopped on Stop;
// it cannot be restarted. If the monitor loop hits an unrecoverable error
// the watcher stops running, Err reports the cause and Done is closed. The
// owner must still call Stop to release the descriptors.
//
// On other platforms Start always fails.
package watcher
