package defs

// Common labels for logging
const (
	LabelComponent = "component"
	LabelName      = "name"
	LabelPart      = "part"

	LabelAddress = "address"
	LabelClient  = "client"
	LabelRemote  = "remote"
	LabelPath    = "path"
)

// NotBufferedID is the buffer ID of records sent without being buffered, i.e. when store-and-forward is disabled
//
// Stores never assign IDs below 1
const NotBufferedID int64 = -1

// BufferDirName is the name of the directory under the user config dir to hold per-application buffer databases
const BufferDirName = "LogBuffer"

// BufferFileSuffix is the file extension of buffer databases
const BufferFileSuffix = ".db"

// XattrBufferIdentity is the extended attribute set on buffer databases to record the application identity it was
// derived from, since the filename is only a hash
const XattrBufferIdentity = "user.logbuffer.identity"
