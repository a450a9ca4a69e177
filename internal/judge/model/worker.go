package model

// JudgeServer is one row of the judge server capacity table. TaskNumber is
// the number of submissions currently assigned to the server and must never
// exceed MaxTaskNumber.
type JudgeServer struct {
	ID            int64
	Name          string
	URL           string
	TaskNumber    int
	MaxTaskNumber int
	IsRemote      bool
}

// HasCapacity reports whether the server can take one more submission.
func (s *JudgeServer) HasCapacity() bool {
	return s.TaskNumber < s.MaxTaskNumber
}

// RemoteAccount is a credential for a remote online judge. Status true means
// the account is free to be claimed.
type RemoteAccount struct {
	ID       int64
	Oj       string
	Username string
	Password string
	Status   bool
	Version  int64
}

// Remote OJ identifiers.
const (
	RemoteOjCodeforces = "CF"
	RemoteOjGym        = "GYM"
	RemoteOjHdu        = "HDU"
)

// NormalizeRemoteOj maps OJ aliases onto the account pool that actually
// serves them. Codeforces gym problems are judged with ordinary CF accounts.
func NormalizeRemoteOj(oj string) string {
	if oj == RemoteOjGym {
		return RemoteOjCodeforces
	}
	return oj
}
