package status

// Kind 编排器当前所处的状态
type Kind int

const (
	KindIdle Kind = iota
	KindNetworkScanner
	KindVulnScanner
	KindBruteforce
	KindSteal
	KindStandalone
	KindUnknown
)

// Behavior 状态对应的展示行为，由显示端消费
type Behavior struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Text  string `json:"text"`
}

// Fallback 未登记状态使用的展示行为
var Fallback = Behavior{Label: "Unknown", Icon: "unknown", Text: "Working on something"}

var behaviors = map[Kind]Behavior{
	KindIdle:           {Label: "IDLE", Icon: "idle", Text: "Waiting for targets"},
	KindNetworkScanner: {Label: "NetworkScanner", Icon: "scanning", Text: "Scanning the network"},
	KindVulnScanner:    {Label: "NmapVulnScanner", Icon: "vuln", Text: "Looking for vulnerabilities"},
	KindBruteforce:     {Label: "Bruteforce", Icon: "bruteforce", Text: "Trying credentials"},
	KindSteal:          {Label: "Steal", Icon: "steal", Text: "Collecting data"},
	KindStandalone:     {Label: "Standalone", Icon: "standalone", Text: "Running local action"},
}

// 动作类名 -> 状态
var actionKinds = map[string]Kind{
	"NetworkScanner":   KindNetworkScanner,
	"NmapVulnScanner":  KindVulnScanner,
	"SSHBruteforce":    KindBruteforce,
	"FTPBruteforce":    KindBruteforce,
	"TelnetBruteforce": KindBruteforce,
	"SMBBruteforce":    KindBruteforce,
	"SQLBruteforce":    KindBruteforce,
	"RDPBruteforce":    KindBruteforce,
	"StealFilesFTP":    KindSteal,
	"StealFilesSSH":    KindSteal,
	"StealFilesTelnet": KindSteal,
	"StealDataSQL":     KindSteal,
	"LogStandalone":    KindStandalone,
}

// BehaviorFor 查表，未登记的状态返回 Fallback
func BehaviorFor(k Kind) Behavior {
	if b, ok := behaviors[k]; ok {
		return b
	}
	return Fallback
}

// KindForAction 动作类名对应的状态，未登记返回 KindUnknown
func KindForAction(class string) Kind {
	if k, ok := actionKinds[class]; ok {
		return k
	}
	return KindUnknown
}

func (k Kind) String() string {
	return BehaviorFor(k).Label
}
