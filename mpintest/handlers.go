package mpintest

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/layer-3/mpin/core"
)

// Error codes in the platform vocabulary the SDK maps onto its outcomes.
const (
	codeInvalidRequest          = "INVALID_REQUEST_PARAMETERS"
	codeInvalidActivationToken  = "INVALID_ACTIVATION_TOKEN"
	codeExpiredMPinID           = "EXPIRED_MPINID"
	codeRevokedMPinID           = "REVOKED_MPINID"
	codeInvalidAuth             = "INVALID_AUTH"
	codeUnsuccessfulAuth        = "UNSUCCESSFUL_AUTHENTICATION"
	codeInvalidAuthSession      = "INVALID_AUTH_SESSION"
	codeBackoffError            = "BACKOFF_ERROR"
	codeInvalidVerificationCode = "INVALID_VERIFICATION_CODE"
	codeLimitedQuickCode        = "LIMITED_QUICKCODE_GENERATION"
	codeInvalidSigningSession   = "INVALID_SIGNING_SESSION"
	codeInvalidSignature        = "INVALID_SIGNATURE"
	codeUnsupportedScope        = "UNSUPPORTED_SCOPE"
)

// Authentication scopes the platform accepts.
const (
	scopeJWT       = "jwt"
	scopeOIDC      = "oidc"
	scopeQuickCode = "reg-code"
	scopeSigning   = "dvs-auth"
)

// fail writes the platform error envelope the SDK's executor parses.
func fail(c *gin.Context, status int, code, info string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "info": info}})
}

func failContext(c *gin.Context, status int, code, info string, errCtx map[string]string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "info": info, "context": errCtx}})
}

// registerUser handles enrollment. The activation token is single use and
// pins the user and project.
func (p *Platform) registerUser(c *gin.Context) {
	var req struct {
		ProjectID       string `json:"projectId" binding:"required"`
		UserID          string `json:"userId" binding:"required"`
		DeviceName      string `json:"deviceName"`
		ActivationToken string `json:"activateToken" binding:"required"`
		PushToken       string `json:"pushToken"`
		PublicKey       string `json:"publicKey" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	publicKey, err := hex.DecodeString(req.PublicKey)
	if err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "malformed public key")
		return
	}
	if _, err := decodeG2(publicKey); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "public key is not a curve point")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	act, ok := p.activations[req.ActivationToken]
	if !ok || act.userID != req.UserID || time.Now().After(act.expires) {
		fail(c, http.StatusBadRequest, codeInvalidActivationToken, "invalid or expired activation token")
		return
	}
	delete(p.activations, req.ActivationToken)

	mpinID := uuid.New()
	id := &identity{
		userID:          act.userID,
		projectID:       act.projectID,
		mpinID:          mpinID[:],
		dtas:            uuid.NewString(),
		publicKey:       publicKey,
		curve:           "BN254",
		pinLength:       p.project(act.projectID).PinLength,
		quickRegistered: act.quick,
	}
	if err := p.issueShares(id); err != nil {
		fail(c, http.StatusInternalServerError, "SHARE_ISSUE_FAILED", err.Error())
		return
	}

	// Earlier registrations of the same user stay valid; a user may hold
	// one identity per device.
	mpinIDHex := hex.EncodeToString(id.mpinID)
	p.identities[mpinIDHex] = id
	p.current[userKey(act.projectID, act.userID)] = mpinIDHex

	c.JSON(http.StatusOK, gin.H{
		"mpinId":    mpinIDHex,
		"projectId": act.projectID,
		"dtas":      id.dtas,
		"curve":     id.curve,
		"secretUrls": []string{
			p.baseURL + "/rps/v2/signature/" + mpinIDHex + "?share=0",
			p.baseURL + "/rps/v2/signature/" + mpinIDHex + "?share=1",
		},
		"pinLength": id.pinLength,
	})
}

// clientSecretShare serves one of the two secret shares issued at
// registration.
func (p *Platform) clientSecretShare(c *gin.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.identities[c.Param("mpinId")]
	if !ok {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "unknown mpinId")
		return
	}

	share := id.share0
	if c.Query("share") == "1" {
		share = id.share1
	}
	c.JSON(http.StatusOK, gin.H{"dvsClientSecret": hex.EncodeToString(share)})
}

// pass1 opens a proof round: it records the client commitment and answers
// with a random challenge. Stale identities fail here so clients learn to
// re-register.
func (p *Platform) pass1(c *gin.Context) {
	var req struct {
		MPinID    string   `json:"mpinId" binding:"required"`
		DTAS      string   `json:"dtas"`
		U         string   `json:"u" binding:"required"`
		Scope     []string `json:"scope"`
		PublicKey string   `json:"publicKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	u, err := hex.DecodeString(req.U)
	if err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "malformed commitment")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.identities[req.MPinID]
	switch {
	case !ok:
		fail(c, http.StatusBadRequest, codeExpiredMPinID, "unknown or replaced mpinId")
		return
	case id.revoked:
		fail(c, http.StatusBadRequest, codeExpiredMPinID, "identity revoked")
		return
	case req.DTAS != id.dtas:
		fail(c, http.StatusBadRequest, codeExpiredMPinID, "stale registration epoch")
		return
	case req.PublicKey != hex.EncodeToString(id.publicKey):
		fail(c, http.StatusBadRequest, codeExpiredMPinID, "public key mismatch")
		return
	}

	y, err := newChallenge()
	if err != nil {
		fail(c, http.StatusInternalServerError, "CHALLENGE_FAILED", err.Error())
		return
	}

	scope := ""
	if len(req.Scope) > 0 {
		scope = req.Scope[0]
	}
	p.transcripts[req.MPinID] = &transcript{
		mpinID: req.MPinID,
		u:      u,
		y:      y,
		scope:  scope,
	}

	c.JSON(http.StatusOK, gin.H{"y": hex.EncodeToString(y)})
}

// pass2 closes the proof round and hands out a single-use authOTT. For
// signing rounds the challenge is retained so the signature stays
// verifiable later.
func (p *Platform) pass2(c *gin.Context) {
	var req struct {
		MPinID    string `json:"mpinId" binding:"required"`
		AccessID  string `json:"accessId"`
		V         string `json:"v" binding:"required"`
		Hash      string `json:"hash"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	v, err := hex.DecodeString(req.V)
	if err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "malformed proof")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.transcripts[req.MPinID]
	if !ok {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "no open proof round")
		return
	}
	delete(p.transcripts, req.MPinID)

	t.v = v
	t.accessID = req.AccessID
	t.timestamp = req.Timestamp
	if req.Hash != "" {
		hash, err := hex.DecodeString(req.Hash)
		if err != nil {
			fail(c, http.StatusBadRequest, codeInvalidRequest, "malformed document hash")
			return
		}
		t.hash = hash
	}

	if t.scope == scopeSigning && len(t.hash) > 0 {
		p.challenges[challengeKey(t.mpinID, t.timestamp)] = t.y
	}

	ott := uuid.NewString()
	p.authOTTs[ott] = t
	c.JSON(http.StatusOK, gin.H{"authOTT": ott})
}

// authenticate redeems an authOTT and decides the round with the pairing
// equation. Wrong proofs count strikes; the third revokes the identity.
func (p *Platform) authenticate(c *gin.Context) {
	var req struct {
		AuthOTT string `json:"authOTT" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.authOTTs[req.AuthOTT]
	if !ok {
		fail(c, http.StatusBadRequest, codeInvalidAuth, "unknown or spent authOTT")
		return
	}
	delete(p.authOTTs, req.AuthOTT)

	id, ok := p.identities[t.mpinID]
	if !ok {
		fail(c, http.StatusBadRequest, codeInvalidAuth, "identity gone")
		return
	}
	if id.revoked {
		fail(c, http.StatusBadRequest, codeRevokedMPinID, "identity revoked")
		return
	}

	challenge := t.y
	if t.scope == scopeSigning && len(t.hash) > 0 {
		derived, err := p.crypto.GetSigningChallenge(t.y, t.hash, t.timestamp)
		if err != nil {
			fail(c, http.StatusBadRequest, codeInvalidAuth, "invalid signing round")
			return
		}
		challenge = derived
	}

	if !p.verifyProof(id, t.u, t.v, challenge) {
		id.strikes++
		if id.strikes >= maxStrikes {
			id.revoked = true
			fail(c, http.StatusBadRequest, codeRevokedMPinID, "identity revoked after repeated failures")
			return
		}
		fail(c, http.StatusBadRequest, codeUnsuccessfulAuth, "proof verification failed")
		return
	}
	id.strikes = 0

	resp := gin.H{}
	switch t.scope {
	case scopeJWT, scopeQuickCode:
		token, err := p.issueJWT(id.userID, id.projectID, t.scope)
		if err != nil {
			fail(c, http.StatusInternalServerError, "TOKEN_ISSUE_FAILED", err.Error())
			return
		}
		resp["jwt"] = token
	case scopeOIDC, scopeSigning:
	default:
		fail(c, http.StatusBadRequest, codeUnsupportedScope, "unsupported scope "+t.scope)
		return
	}

	if id.renew {
		id.renew = false
		resp["renewSecret"] = gin.H{
			"token": p.newActivationToken(id.projectID, id.userID, "", false),
			"curve": id.curve,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// createSession opens a cross-device authentication session, the call a
// relying party backend makes to render a login QR code.
func (p *Platform) createSession(c *gin.Context) {
	var req struct {
		ProjectID string `json:"projectId" binding:"required"`
		UserID    string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	accessID, qrURL := p.CreateSession(req.ProjectID, req.UserID)
	c.JSON(http.StatusOK, gin.H{
		"accessId": accessID,
		"qrURL":    qrURL,
		"webOTT":   uuid.NewString(),
	})
}

// codeStatus multiplexes cross-device session operations: wid fetches the
// unified descriptor, user binds an authenticated user, abort terminates
// the session. Signing sessions answer wid and abort too, which is what
// makes one QR-scan flow serve both origins.
func (p *Platform) codeStatus(c *gin.Context) {
	var req struct {
		Status   string `json:"status" binding:"required"`
		AccessID string `json:"accessId" binding:"required"`
		UserID   string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.Status {
	case "wid":
		if s, ok := p.sessions[req.AccessID]; ok {
			project := p.project(s.projectID)
			c.JSON(http.StatusOK, gin.H{
				"userId":                     s.userID,
				"projectId":                  s.projectID,
				"projectName":                project.Name,
				"projectLogoUrl":             project.LogoURL,
				"pinLength":                  project.PinLength,
				"verificationMethod":         project.VerificationMethod,
				"quickCodeEnabled":           !project.LimitQuickCode,
				"limitQuickCodeRegistration": project.LimitQuickCode,
				"status":                     s.status,
			})
			return
		}
		if s, ok := p.signingSessions[req.AccessID]; ok {
			project := p.project(s.projectID)
			c.JSON(http.StatusOK, gin.H{
				"userId":             s.userID,
				"projectId":          s.projectID,
				"projectName":        project.Name,
				"projectLogoUrl":     project.LogoURL,
				"pinLength":          project.PinLength,
				"status":             s.status,
				"signingHash":        s.hash,
				"signingDescription": s.description,
			})
			return
		}
		fail(c, http.StatusBadRequest, codeInvalidAuthSession, "unknown session")

	case "user":
		s, ok := p.sessions[req.AccessID]
		if !ok {
			fail(c, http.StatusBadRequest, codeInvalidAuthSession, "unknown session")
			return
		}
		s.userID = req.UserID
		c.JSON(http.StatusOK, gin.H{})

	case "abort":
		if _, ok := p.sessions[req.AccessID]; ok {
			delete(p.sessions, req.AccessID)
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		if _, ok := p.signingSessions[req.AccessID]; ok {
			delete(p.signingSessions, req.AccessID)
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		fail(c, http.StatusBadRequest, codeInvalidAuthSession, "unknown session")

	default:
		fail(c, http.StatusBadRequest, codeInvalidRequest, "unknown status "+req.Status)
	}
}

// sendVerificationEmail starts an email verification. No mail leaves the
// process; tests read the code back with VerificationCode.
func (p *Platform) sendVerificationEmail(c *gin.Context) {
	var req struct {
		ProjectID  string `json:"projectId" binding:"required"`
		UserID     string `json:"userId" binding:"required"`
		DeviceName string `json:"deviceName"`
		AccessID   string `json:"accessId"`
		MPinID     string `json:"mpinId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.backoffUntil > now.Unix() {
		failContext(c, http.StatusBadRequest, codeBackoffError, "try again later", map[string]string{
			"backoff": strconv.FormatInt(p.backoffUntil, 10),
		})
		return
	}

	if _, err := p.newVerificationCode(req.ProjectID, req.UserID, req.AccessID, false); err != nil {
		fail(c, http.StatusInternalServerError, "CODE_ISSUE_FAILED", err.Error())
		return
	}

	method := p.project(req.ProjectID).VerificationMethod
	if method == "" {
		method = "code"
	}
	c.JSON(http.StatusOK, gin.H{
		"backoff": now.Add(resendInterval).Unix(),
		"method":  method,
	})
}

// confirmVerification exchanges an emailed code or a QuickCode for an
// activation token. Codes are single use and rejection echoes what the
// platform knows about the attempt.
func (p *Platform) confirmVerification(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
		Code   string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.verifications[req.Code]
	if !ok || rec.userID != req.UserID {
		failContext(c, http.StatusBadRequest, codeInvalidVerificationCode, "unknown verification code", map[string]string{
			"userId": req.UserID,
		})
		return
	}
	delete(p.verifications, req.Code)

	if time.Now().After(rec.expires) {
		failContext(c, http.StatusBadRequest, codeInvalidVerificationCode, "verification code expired", map[string]string{
			"userId":    rec.userID,
			"projectId": rec.projectID,
			"accessId":  rec.accessID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"projectId": rec.projectID,
		"accessId":  rec.accessID,
		"actToken":  p.newActivationToken(rec.projectID, rec.userID, rec.accessID, rec.quick),
	})
}

// generateQuickCode exchanges a freshly issued QuickCode-scoped JWT for a
// registration code another device can redeem.
func (p *Platform) generateQuickCode(c *gin.Context) {
	var req struct {
		ProjectID  string `json:"projectId" binding:"required"`
		JWT        string `json:"jwt" binding:"required"`
		DeviceName string `json:"deviceName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	claims, err := p.ParseJWT(req.JWT, jwt.WithAudience(req.ProjectID))
	if err != nil {
		fail(c, http.StatusUnauthorized, codeInvalidAuth, "invalid token")
		return
	}
	if claims.Scope != scopeQuickCode {
		fail(c, http.StatusUnauthorized, codeInvalidAuth, "token scope does not permit quickcode generation")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.project(req.ProjectID).LimitQuickCode {
		if id, ok := p.currentIdentity(req.ProjectID, claims.Subject); ok && id.quickRegistered {
			fail(c, http.StatusBadRequest, codeLimitedQuickCode, "quickcode-registered users may not generate quickcodes")
			return
		}
	}

	code, err := p.newVerificationCode(req.ProjectID, claims.Subject, "", true)
	if err != nil {
		fail(c, http.StatusInternalServerError, "CODE_ISSUE_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":       code,
		"expireTime": time.Now().Add(quickCodeTTL).Unix(),
		"ttlSeconds": int(quickCodeTTL / time.Second),
	})
}

// createSigningSession opens a cross-device signing session, the call a
// relying party backend makes to render a signing QR code.
func (p *Platform) createSigningSession(c *gin.Context) {
	var req struct {
		ProjectID   string `json:"projectId" binding:"required"`
		UserID      string `json:"userId"`
		Hash        string `json:"hash" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	sessionID, qrURL := p.CreateSigningSession(req.ProjectID, req.UserID, req.Hash, req.Description)

	p.mu.Lock()
	expires := p.signingSessions[sessionID].expires
	p.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"id":         sessionID,
		"qrURL":      qrURL,
		"expireTime": expires.Unix(),
	})
}

// fetchSigningSession returns the signing session descriptor.
func (p *Platform) fetchSigningSession(c *gin.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.signingSessions[c.Query("id")]
	if !ok {
		fail(c, http.StatusBadRequest, codeInvalidSigningSession, "unknown signing session")
		return
	}

	project := p.project(s.projectID)
	c.JSON(http.StatusOK, gin.H{
		"userId":                     s.userID,
		"projectId":                  s.projectID,
		"projectName":                project.Name,
		"projectLogoUrl":             project.LogoURL,
		"pinLength":                  project.PinLength,
		"verificationMethod":         project.VerificationMethod,
		"quickCodeEnabled":           !project.LimitQuickCode,
		"limitQuickCodeRegistration": project.LimitQuickCode,
		"signingHash":                s.hash,
		"signingDescription":         s.description,
		"status":                     s.status,
		"expireTime":                 s.expires.Unix(),
	})
}

// updateSigningSession accepts a finished signature for the session's
// document. The signature is verified before the session flips to signed.
func (p *Platform) updateSigningSession(c *gin.Context) {
	var req struct {
		ID        string          `json:"id" binding:"required"`
		Signature *core.Signature `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.signingSessions[req.ID]
	if !ok {
		fail(c, http.StatusBadRequest, codeInvalidSigningSession, "unknown signing session")
		return
	}
	if req.Signature.Hash != s.hash {
		fail(c, http.StatusBadRequest, codeInvalidSigningSession, "signature is not over the session document")
		return
	}
	if !p.verifySignature(req.Signature) {
		fail(c, http.StatusBadRequest, codeInvalidSignature, "signature verification failed")
		return
	}

	s.status = core.SessionStatusSigned
	s.signature = req.Signature
	c.JSON(http.StatusOK, gin.H{"status": s.status})
}

// abortSigningSession terminates a signing session.
func (p *Platform) abortSigningSession(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.signingSessions[req.ID]; !ok {
		fail(c, http.StatusBadRequest, codeInvalidSigningSession, "unknown signing session")
		return
	}
	delete(p.signingSessions, req.ID)
	c.JSON(http.StatusOK, gin.H{})
}

// verifySignatureEndpoint lets relying parties verify a detached signature.
func (p *Platform) verifySignatureEndpoint(c *gin.Context) {
	var req struct {
		Signature *core.Signature `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"verified": p.verifySignature(req.Signature)})
}
