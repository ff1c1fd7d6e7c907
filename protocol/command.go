package protocol

import "fmt"

// OpKind is the APPLICATION tag number of a protocolOp.
type OpKind uint8

const (
	KindBindRequest           OpKind = 0
	KindBindResponse          OpKind = 1
	KindUnbindRequest         OpKind = 2
	KindSearchRequest         OpKind = 3
	KindSearchResultEntry     OpKind = 4
	KindSearchResultDone      OpKind = 5
	KindModifyRequest         OpKind = 6
	KindModifyResponse        OpKind = 7
	KindAddRequest            OpKind = 8
	KindAddResponse           OpKind = 9
	KindDeleteRequest         OpKind = 10
	KindDeleteResponse        OpKind = 11
	KindModifyDNRequest       OpKind = 12
	KindModifyDNResponse      OpKind = 13
	KindCompareRequest        OpKind = 14
	KindCompareResponse       OpKind = 15
	KindAbandonRequest        OpKind = 16
	KindSearchResultReference OpKind = 19
	KindExtendedRequest       OpKind = 23
	KindExtendedResponse      OpKind = 24
	KindIntermediateResponse  OpKind = 25
)

var kindNames = map[OpKind]string{
	KindBindRequest:           "BindRequest",
	KindBindResponse:          "BindResponse",
	KindUnbindRequest:         "UnbindRequest",
	KindSearchRequest:         "SearchRequest",
	KindSearchResultEntry:     "SearchResultEntry",
	KindSearchResultDone:      "SearchResultDone",
	KindModifyRequest:         "ModifyRequest",
	KindModifyResponse:        "ModifyResponse",
	KindAddRequest:            "AddRequest",
	KindAddResponse:           "AddResponse",
	KindDeleteRequest:         "DelRequest",
	KindDeleteResponse:        "DelResponse",
	KindModifyDNRequest:       "ModifyDNRequest",
	KindModifyDNResponse:      "ModifyDNResponse",
	KindCompareRequest:        "CompareRequest",
	KindCompareResponse:       "CompareResponse",
	KindAbandonRequest:        "AbandonRequest",
	KindSearchResultReference: "SearchResultReference",
	KindExtendedRequest:       "ExtendedRequest",
	KindExtendedResponse:      "ExtendedResponse",
	KindIntermediateResponse:  "IntermediateResponse",
}

func (k OpKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("Application(%d)", uint8(k))
}
