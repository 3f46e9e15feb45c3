// Package rms implements persistent record stores: named, single-file heaps
// of variable-length byte records addressed by stable integer ids.
//
// Each store belongs to one application (vendor plus suite) and lives in
// one file under the registry's directory. Records are kept in blocks
// rounded up to a 16-byte allocation unit; freed blocks are reused
// first-fit and squeezed out when the last handle on the store closes.
//
// # Basic Usage
//
//	reg, err := rms.NewRegistry(rms.Options{Dir: "/var/lib/rms"})
//	if err != nil {
//	    return err
//	}
//
//	app := rms.AppID{Vendor: "acme", Suite: "notes"}
//
//	s, err := reg.OpenOwn(app, "drafts", true, rms.AuthPrivate, false)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	id, err := s.Add([]byte("hello"))
//	data, err := s.Get(id)
//
// # Sharing
//
// Opening the same store twice yields two handles on one instance; changes
// through either are visible through both. Another application may open a
// store with [Registry.OpenShared] once the owner has switched it to
// [AuthAny]. Whether non-owners may also write is chosen by the writable
// flag of [Store.SetMode].
//
// # Concurrency
//
// Every operation on a store runs under that store's mutex, including the
// dispatch of [Listener] callbacks. Registry operations take the registry
// mutex first. Nothing coordinates multiple processes opening the same
// directory.
//
// # Error Handling
//
// Errors are matched with [errors.Is] against the sentinels in this
// package. [ErrCorrupt] means the file must be deleted and recreated.
// [ErrIO] wraps the underlying file error. No failed operation closes the
// store.
package rms
