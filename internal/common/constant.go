// Package common contains shared constants and sentinel errors used across
// seedtrack components.
package common

// ActorIDHeaderName carries the authenticated actor id on sync requests.
// It is set by the session layer, which is outside this core.
const ActorIDHeaderName = "X-Actor-Id"

// DeviceIDHeaderName carries the stable device identifier on sync requests.
const DeviceIDHeaderName = "X-Device-Id"
