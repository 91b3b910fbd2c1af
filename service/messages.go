package service

// EncodeRequest is the payload of the encode endpoint.
type EncodeRequest struct {
	Text string `json:"text" msgpack:"text"`
	Key  int    `json:"key" msgpack:"key"`
}

// EncodeResponse is returned by the encode endpoint.
type EncodeResponse struct {
	Encoded  string `json:"encoded" msgpack:"encoded"`
	Original string `json:"original" msgpack:"original"`
	Key      int    `json:"key" msgpack:"key"`
}

// DecodeRequest is the payload of the decode endpoint.
type DecodeRequest struct {
	Numbers string `json:"numbers" msgpack:"numbers"`
	Key     int    `json:"key" msgpack:"key"`
}

// DecodeResponse is returned by the decode endpoint.
type DecodeResponse struct {
	Decoded  string `json:"decoded" msgpack:"decoded"`
	Original string `json:"original" msgpack:"original"`
	Key      int    `json:"key" msgpack:"key"`
}

// CandidatesRequest is the payload of the candidates endpoint.
type CandidatesRequest struct {
	Numbers string `json:"numbers" msgpack:"numbers"`
	Key     int    `json:"key" msgpack:"key"`
}

// CandidatesResponse lists, for each digit of the request, every consonant
// that encodes to it under the request key.
type CandidatesResponse struct {
	Candidates [][]string `json:"candidates" msgpack:"candidates"`
}
