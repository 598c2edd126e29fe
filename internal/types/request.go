package types

type RequestPairPhone struct {
	Phone string `json:"phone"`
}

type RequestSendText struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type RequestKeyword struct {
	Keyword string `json:"keyword"`
}

type RequestRegisterWebhook struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

type RequestCreateToken struct {
	Client  string `json:"client"`
	Version int    `json:"version"`
}
