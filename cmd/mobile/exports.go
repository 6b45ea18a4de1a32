//go:build cgo

package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"encoding/json"

	"github.com/kimhsiao/pawtrail/core/internal/bridge"
)

// Every walk export returns the bridge JSON envelope
// {"ok":bool,"data":...,"error":{"code","message"}} as a C string that must
// be released with FreeString.

//export Call
// Call invokes any bridge method with a JSON payload.
func Call(method, payload *C.char) *C.char {
	return call(C.GoString(method), []byte(C.GoString(payload)))
}

//export WalkStart
func WalkStart(dogID, userID *C.char) *C.char {
	payload, _ := json.Marshal(map[string]string{
		"dogId":  C.GoString(dogID),
		"userId": C.GoString(userID),
	})
	return call(bridge.MethodStartWalk, payload)
}

//export WalkRecordLocation
func WalkRecordLocation(latitude, longitude C.double) *C.char {
	payload, _ := json.Marshal(map[string]float64{
		"latitude":  float64(latitude),
		"longitude": float64(longitude),
	})
	return call(bridge.MethodRecordLocation, payload)
}

//export WalkRecordEvent
func WalkRecordEvent(eventType *C.char) *C.char {
	payload, _ := json.Marshal(map[string]string{"eventType": C.GoString(eventType)})
	return call(bridge.MethodRecordEvent, payload)
}

//export WalkPause
func WalkPause() *C.char {
	return call(bridge.MethodPause, nil)
}

//export WalkResume
func WalkResume() *C.char {
	return call(bridge.MethodResume, nil)
}

//export WalkFinish
func WalkFinish() *C.char {
	return call(bridge.MethodFinishWalk, nil)
}

//export WalkCurrent
func WalkCurrent() *C.char {
	return call(bridge.MethodCurrentWalk, nil)
}

//export SyncNow
func SyncNow() *C.char {
	return call(bridge.MethodSyncNow, nil)
}

//export SyncPendingCount
func SyncPendingCount() *C.char {
	return call(bridge.MethodPendingCount, nil)
}

//export RecoveryCheck
// RecoveryCheck takes "unknown", "loggedOut" or "loggedIn".
func RecoveryCheck(auth *C.char) *C.char {
	payload, _ := json.Marshal(map[string]string{"auth": C.GoString(auth)})
	return call(bridge.MethodCheckCrashed, payload)
}

//export RecoveryResolve
// RecoveryResolve takes "resume" or "discard".
func RecoveryResolve(decision *C.char) *C.char {
	payload, _ := json.Marshal(map[string]string{"decision": C.GoString(decision)})
	return call(bridge.MethodResolveCrashed, payload)
}

//export NetworkSetConnected
func NetworkSetConnected(connected C.int) *C.char {
	payload, _ := json.Marshal(map[string]bool{"connected": connected != 0})
	return call(bridge.MethodSetConnectivity, payload)
}
