package honeypot

// Verb identifies the FTP command that triggered a backend operation.
type Verb int

const (
	VerbUser Verb = iota
	VerbPass
	VerbCwd
	VerbPwd
	VerbList
	VerbStat
	VerbRetr
	VerbStor
	VerbDele
	VerbRnfr
	VerbRnto
	VerbMkd
	VerbRmd
	VerbQuit
)

var verbNames = [...]string{
	VerbUser: "USER",
	VerbPass: "PASS",
	VerbCwd:  "CWD",
	VerbPwd:  "PWD",
	VerbList: "LIST",
	VerbStat: "STAT",
	VerbRetr: "RETR",
	VerbStor: "STOR",
	VerbDele: "DELE",
	VerbRnfr: "RNFR",
	VerbRnto: "RNTO",
	VerbMkd:  "MKD",
	VerbRmd:  "RMD",
	VerbQuit: "QUIT",
}

func (v Verb) String() string {
	if int(v) < len(verbNames) {
		return verbNames[v]
	}
	return "UNKNOWN"
}

// Result is the protocol-plausible outcome of a backend operation. The
// protocol engine maps these onto FTP reply codes; the interceptor never
// returns anything outside this set, whatever went wrong internally.
type Result int

const (
	ResultOK Result = iota
	ResultNotFound
	ResultPermissionDenied
	ResultGeneric
)

var resultCodes = [...]string{
	ResultOK:               "ok",
	ResultNotFound:         "not_found",
	ResultPermissionDenied: "permission_denied",
	ResultGeneric:          "generic",
}

// Code returns the stable string form recorded in command_events.
func (r Result) Code() string {
	if int(r) < len(resultCodes) {
		return resultCodes[r]
	}
	return "generic"
}
