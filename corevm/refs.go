package corevm

import "unsafe"

// wordFromPtr reinterprets a Go pointer as a stream Word, exactly as
// the original loader reinterpret_casts a site pointer into the
// opcode stream. keep is retained in heapKeepAlive so Go's garbage
// collector does not reclaim the pointee once its address has been
// erased into a plain integer word.
func wordFromPtr(p unsafe.Pointer, keep any) Word {
	heapKeepAliveMu.Lock()
	heapKeepAlive[p] = keep
	heapKeepAliveMu.Unlock()
	return Word(int64(uintptr(p)))
}

// callSiteAt reinterprets w as a *CallSite.
func callSiteAt(w Word) *CallSite {
	return (*CallSite)(unsafe.Pointer(uintptr(w)))
}

// constantCacheAt reinterprets w as a *ConstantCache.
func constantCacheAt(w Word) *ConstantCache {
	return (*ConstantCache)(unsafe.Pointer(uintptr(w)))
}

// unwindSiteAt reinterprets w as a *UnwindSite.
func unwindSiteAt(w Word) *UnwindSite {
	return (*UnwindSite)(unsafe.Pointer(uintptr(w)))
}
