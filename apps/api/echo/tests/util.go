package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/kiongozi/apps/api/echo"
	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/billing"
	"github.com/trezcool/kiongozi/core/content"
	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/debrief"
	"github.com/trezcool/kiongozi/core/forum"
	"github.com/trezcool/kiongozi/core/recommend"
	"github.com/trezcool/kiongozi/core/simulation"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/services/email"
	"github.com/trezcool/kiongozi/storage/database/dummy"
	"github.com/trezcool/kiongozi/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fakeGenerator struct {
	text  string
	err   error
	calls int
}

func (g *fakeGenerator) Generate(context.Context, debrief.Prompt) (debrief.Completion, error) {
	g.calls++
	if g.err != nil {
		return debrief.Completion{}, g.err
	}
	return debrief.Completion{Text: g.text, Model: "test-model"}, nil
}

type env struct {
	app      echoapi.Server
	conf     *core.Config
	usrRepo  user.Repository
	programs curriculum.Repository
	cases    simulation.Repository
	mail     *emailsvc.ConsoleServiceMock
	gen      *fakeGenerator
}

type option func(conf *core.Config, deps *echoapi.Deps)

// withRateLimits enables rate limiting with every rule allowing limit requests per window.
func withRateLimits(limit int) option {
	return func(conf *core.Config, _ *echoapi.Deps) {
		conf.RateLimit.Enabled = true
		conf.RateLimit.Window = time.Hour
		conf.RateLimit.Login = limit
		conf.RateLimit.Password = limit
		conf.RateLimit.Debrief = limit
		conf.RateLimit.Forum = limit
		conf.RateLimit.Webhook = limit
	}
}

func setup(t *testing.T, opts ...option) env {
	t.Helper()
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up DB & repos
	db := dummydb.Open()
	e := env{
		conf:     conf,
		usrRepo:  dummydb.NewUserRepository(db),
		programs: dummydb.NewCurriculumRepository(db),
		cases:    dummydb.NewSimulationRepository(db),
		mail:     emailsvc.NewConsoleServiceMock(conf, logger),
		gen:      &fakeGenerator{text: `{"summary": "Good call.", "strengths": ["listening"], "improvements": [], "rating": 4}`},
	}

	// set up services
	usrSvc := user.NewService(e.usrRepo, e.mail, conf)
	billingSvc := billing.NewService(dummydb.NewBillingRepository(db), usrSvc, e.mail, conf, logger)
	curriculumSvc := curriculum.NewService(e.programs, billingSvc)
	simulationSvc := simulation.NewService(e.cases, validate)
	deps := &echoapi.Deps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       usrSvc,
		CurriculumSvc: curriculumSvc,
		RecommendSvc:  recommend.NewService(curriculumSvc),
		SimulationSvc: simulationSvc,
		DebriefSvc:    debrief.NewService(dummydb.NewDebriefRepository(db), simulationSvc, e.gen, logger),
		ForumSvc:      forum.NewService(dummydb.NewForumRepository(db), usrSvc, curriculumSvc, e.mail, validate, logger),
		BillingSvc:    billingSvc,
		ContentSvc:    content.NewService(e.programs, e.cases, validate, translator, logger),
	}
	for _, opt := range opts {
		opt(conf, deps)
	}

	// set up server
	e.app = echoapi.NewServer("", make(chan os.Signal, 1), deps)
	t.Cleanup(func() { _ = e.app.Close() })
	return e
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (e env) getToken(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(e.conf, echoapi.GetUserClaims(e.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// do sends a request and decodes the JSON response into out, when set.
func (e env) do(t *testing.T, method, path, token string, body []byte, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(method, path, token, body)
	e.app.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
		}
	}
	return rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "code")
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
