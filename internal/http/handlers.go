package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"moff.io/wallet-pairing/internal/requests"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/internal/walletconnect"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

const (
	codeOK              = 0
	codeBadRequest      = 4000
	codeNotConnected    = 4001
	codeConnectInFlight = 4009
	codeNoQRCode        = 4004
	codeNoEvents        = 4005
	codeWalletRejected  = 4030
	codeTooManyRequests = 4290
	codeServerError     = 5000
	codeNoClient        = 5030

	defaultMessage = "Hello World!"
)

type result struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func ok(ctx *gin.Context, status int, data interface{}) {
	ctx.JSON(status, result{Code: codeOK, Msg: "success", Data: data})
}

func fail(ctx *gin.Context, status, code int, msg string) {
	ctx.JSON(status, result{Code: code, Msg: msg})
}

// failWith maps manager and wallet errors to responses.
func failWith(ctx *gin.Context, err error) {
	var rpcErr *walletconnect.RPCError
	switch {
	case errors.Is(err, session.ErrConnectInFlight):
		fail(ctx, http.StatusConflict, codeConnectInFlight, err.Error())
	case errors.Is(err, session.ErrNoClient):
		fail(ctx, http.StatusServiceUnavailable, codeNoClient, err.Error())
	case errors.Is(err, walletconnect.ErrRejected), errors.As(err, &rpcErr):
		fail(ctx, http.StatusBadGateway, codeWalletRejected, err.Error())
	case errors.Is(err, requests.ErrInvalidAddress):
		fail(ctx, http.StatusBadRequest, codeBadRequest, err.Error())
	default:
		fail(ctx, http.StatusInternalServerError, codeServerError, err.Error())
	}
}

func (s *Server) state(ctx *gin.Context) {
	ok(ctx, http.StatusOK, s.sessions.State())
}

type connectRequest struct {
	Chains []string `json:"chains"`
}

func (s *Server) connect(ctx *gin.Context) {
	var req connectRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			fail(ctx, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
	}
	if st := s.sessions.State(); st.Status == session.Connecting {
		fail(ctx, http.StatusConflict, codeConnectInFlight, session.ErrConnectInFlight.Error())
		return
	}
	chains := req.Chains
	if len(chains) == 0 && s.opts.ChainID != "" {
		chains = []string{s.opts.ChainID}
	}
	required := requests.DefaultNamespaces(s.opts.Namespace, chains...)
	go func() {
		if err := s.sessions.Connect(s.baseCtx, required); err != nil {
			log.Warnf("connect: %v", err)
		}
	}()
	ok(ctx, http.StatusAccepted, gin.H{"status": session.Connecting})
}

func (s *Server) disconnect(ctx *gin.Context) {
	if err := s.sessions.Disconnect(ctx.Request.Context()); err != nil {
		failWith(ctx, err)
		return
	}
	ok(ctx, http.StatusOK, s.sessions.State())
}

func (s *Server) reset(ctx *gin.Context) {
	s.sessions.Reset(ctx.Request.Context())
	ok(ctx, http.StatusOK, s.sessions.State())
}

func (s *Server) qr(ctx *gin.Context) {
	if s.opts.QR == nil {
		fail(ctx, http.StatusNotFound, codeNoQRCode, "qr codes are not served")
		return
	}
	png, uri := s.opts.QR.Current()
	if png == nil {
		fail(ctx, http.StatusNotFound, codeNoQRCode, "no pairing in progress")
		return
	}
	ctx.Header("X-Pairing-URI", uri)
	ctx.Data(http.StatusOK, "image/png", png)
}

func (s *Server) events(ctx *gin.Context) {
	if s.opts.Events == nil {
		fail(ctx, http.StatusNotFound, codeNoEvents, "event log not configured")
		return
	}
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	events, err := s.opts.Events.Recent(ctx.Request.Context(), limit)
	if err != nil {
		failWith(ctx, err)
		return
	}
	ok(ctx, http.StatusOK, events)
}

type signRequest struct {
	Message string `json:"message"`
}

func (s *Server) personalSign(ctx *gin.Context) {
	var req signRequest
	if !bindOptional(ctx, &req) {
		return
	}
	if req.Message == "" {
		req.Message = defaultMessage
	}
	s.respond(ctx, true, requests.PersonalSign(req.Message))
}

// txRequest overrides the sample transfer.
type txRequest struct {
	To string `json:"to"`
}

func (s *Server) sampleTx(ctx *gin.Context) (requests.Tx, bool) {
	var req txRequest
	if !bindOptional(ctx, &req) {
		return requests.Tx{}, false
	}
	if req.To == "" {
		req.To = s.opts.TestAccount
	}
	return requests.SampleTransfer(req.To), true
}

func (s *Server) signTransaction(ctx *gin.Context) {
	tx, valid := s.sampleTx(ctx)
	if !valid {
		return
	}
	tx.GasLimit = nil
	s.respond(ctx, true, requests.SignTransaction(tx))
}

func (s *Server) sendTransaction(ctx *gin.Context) {
	tx, valid := s.sampleTx(ctx)
	if !valid {
		return
	}
	s.respond(ctx, false, requests.SendTransaction(tx))
}

func (s *Server) signTypedData(ctx *gin.Context) {
	chain := requests.ChainReference(s.sessions.State().ChainID)
	if chain == 0 {
		chain = requests.ChainReference(s.opts.ChainID)
	}
	if chain == 0 {
		chain = 1
	}
	s.respond(ctx, true, requests.SignTypedData(requests.SampleMail(chain)))
}

type genericRequest struct {
	Method string        `json:"method" binding:"required"`
	Params []interface{} `json:"params"`
}

func (s *Server) request(ctx *gin.Context) {
	var req genericRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	s.respond(ctx, true, requests.Generic(req.Method, req.Params...))
}

func (s *Server) respond(ctx *gin.Context, signature bool, p session.Payload) {
	if s.sessions.State().Status != session.Connected {
		fail(ctx, http.StatusConflict, codeNotConnected, "no wallet connected")
		return
	}
	var (
		resp json.RawMessage
		err  error
	)
	if signature {
		resp, err = s.sessions.RequestSignature(ctx.Request.Context(), p)
	} else {
		resp, err = s.sessions.RequestTransaction(ctx.Request.Context(), p)
	}
	if err != nil {
		failWith(ctx, err)
		return
	}
	if resp == nil {
		// the session went away while the request was built
		fail(ctx, http.StatusConflict, codeNotConnected, "no wallet connected")
		return
	}
	ok(ctx, http.StatusOK, resp)
}

// bindOptional decodes a json body when one is sent.
func bindOptional(ctx *gin.Context, v interface{}) bool {
	if ctx.Request.ContentLength == 0 {
		return true
	}
	if err := ctx.ShouldBindJSON(v); err != nil {
		fail(ctx, http.StatusBadRequest, codeBadRequest, err.Error())
		return false
	}
	return true
}
