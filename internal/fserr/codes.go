package fserr

// Win32 error codes the taxonomy understands. They are plain numbers so
// every backend, including the in-memory ones, can report them.
const (
	CodeFileNotFound          uint32 = 2
	CodePathNotFound          uint32 = 3
	CodeAccessDenied          uint32 = 5
	CodeNotSameDevice         uint32 = 17
	CodeWriteProtect          uint32 = 19
	CodeSharingViolation      uint32 = 32
	CodeLockViolation         uint32 = 33
	CodeFileExists            uint32 = 80
	CodeInvalidName           uint32 = 123
	CodeDirNotEmpty           uint32 = 145
	CodeBadPathname           uint32 = 161
	CodeAlreadyExists         uint32 = 183
	CodeDirectory             uint32 = 267
	CodeNotAReparsePoint      uint32 = 4390
	CodeTransactionalConflict uint32 = 6800
	CodeGenFailure            uint32 = 31
)

var codeForKind = map[Kind]uint32{
	NativeFailure:                 CodeGenFailure,
	InvalidPath:                   CodeInvalidName,
	UnsupportedPath:               CodeBadPathname,
	NotFound:                      CodeFileNotFound,
	DirectoryExpectedButFileFound: CodeDirectory,
	AlreadyExists:                 CodeAlreadyExists,
	DirectoryNotEmpty:             CodeDirNotEmpty,
	ReadOnly:                      CodeWriteProtect,
	AccessDenied:                  CodeAccessDenied,
	SharingViolation:              CodeSharingViolation,
	NotSameDevice:                 CodeNotSameDevice,
	TransactionConflict:           CodeTransactionalConflict,
}

// KindForCode maps a Win32 error code to its Kind.
func KindForCode(code uint32) Kind {
	switch code {
	case CodeFileNotFound, CodePathNotFound:
		return NotFound
	case CodeAccessDenied:
		return AccessDenied
	case CodeNotSameDevice:
		return NotSameDevice
	case CodeWriteProtect:
		return ReadOnly
	case CodeSharingViolation, CodeLockViolation:
		return SharingViolation
	case CodeFileExists, CodeAlreadyExists:
		return AlreadyExists
	case CodeInvalidName:
		return InvalidPath
	case CodeBadPathname:
		return UnsupportedPath
	case CodeDirNotEmpty:
		return DirectoryNotEmpty
	case CodeDirectory:
		return DirectoryExpectedButFileFound
	case CodeTransactionalConflict:
		return TransactionConflict
	default:
		return NativeFailure
	}
}

// FromCode builds an *Error for a native failure code.
func FromCode(code uint32, op, path string, cause error) *Error {
	return &Error{Kind: KindForCode(code), Op: op, Path: path, Code: code, Err: cause}
}
