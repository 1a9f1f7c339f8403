package consul

import (
	"fmt"
	"testing"

	sapi "github.com/evaly/scorepipe/internal/pkg/scorer/api"
	"github.com/evaly/scorepipe/internal/pkg/test/mocks"
	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
)

func Test_Get_empty(t *testing.T) {
	p := newProvider(nil, "scorer")
	sc, name, err := p.Get()
	assert.Nil(t, sc)
	assert.Equal(t, "", name)
	assert.NotNil(t, err)
}

func Test_Get_one(t *testing.T) {
	p := newProvider(nil, "scorer")
	sc := &mocks.Scorer{}
	p.scorers = append(p.scorers, &scWrap{real: sc, srv: "olia", priority: 1})
	rsc, name, err := p.Get()
	assert.Equal(t, sc, rsc)
	assert.Equal(t, "olia", name)
	assert.Nil(t, err)
}

func Test_Get_several(t *testing.T) {
	p := newProvider(nil, "scorer")
	sc := &mocks.Scorer{}
	sc1 := &mocks.Scorer{}
	p.scorers = append(p.scorers, &scWrap{real: sc, srv: "olia", priority: 1})
	p.scorers = append(p.scorers, &scWrap{real: sc1, srv: "olia1", priority: 1})
	for i := 0; i < 10; i++ {
		rsc, name, err := p.Get()
		assert.Nil(t, err)
		assert.NotEqual(t, "", name)
		testAssertOneOf(t, rsc, sc, sc1)
	}
}

func testAssertOneOf(t *testing.T, sc sapi.Scorer, exp ...sapi.Scorer) {
	t.Helper()
	for _, e := range exp {
		if fmt.Sprintf("%p", sc) == fmt.Sprintf("%p", e) {
			return
		}
	}
	t.Errorf("unexpected scorer %p", sc)
}

func Test_getRandomByPriority_fails(t *testing.T) {
	_, err := getRandomByPriority([]*scWrap{{priority: 0}, {priority: 0}})
	assert.NotNil(t, err)
}

func TestProvider_updateSrv_no_meta(t *testing.T) {
	p := newProvider(nil, "scorer")
	err := p.updateSrv([]*api.ServiceEntry{{Service: &api.AgentService{Service: "olia", Port: 80, Address: "srv", Meta: map[string]string{}}}})
	assert.NotNil(t, err)
}

func TestProvider_updateSrv_adds(t *testing.T) {
	p := newProvider(nil, "scorer")
	err := p.updateSrv([]*api.ServiceEntry{{Service: &api.AgentService{Service: "olia", Port: 80, Address: "srv",
		Meta: map[string]string{"submitURL": "evaluate"}}}})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(p.scorers))
}

func TestProvider_updateSrv_addsSame(t *testing.T) {
	p := newProvider(nil, "scorer")
	err := p.updateSrv([]*api.ServiceEntry{{Service: &api.AgentService{Service: "olia", Port: 80, Address: "srv",
		Meta: map[string]string{"submitURL": "evaluate"}}}})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(p.scorers))
	cp := p.scorers[0]
	err = p.updateSrv([]*api.ServiceEntry{{Service: &api.AgentService{Service: "olia", Port: 80, Address: "srv",
		Meta: map[string]string{"submitURL": "evaluate"}}}})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(p.scorers))
	assert.Equal(t, cp, p.scorers[0])
}

func TestProvider_updateSrv_updates(t *testing.T) {
	p := newProvider(nil, "scorer")
	err := p.updateSrv([]*api.ServiceEntry{{Service: &api.AgentService{Service: "olia", Port: 80, Address: "srv",
		Meta: map[string]string{"submitURL": "evaluate"}}}})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(p.scorers))
	cp := p.scorers[0]
	err = p.updateSrv([]*api.ServiceEntry{{Service: &api.AgentService{Service: "olia", Port: 80, Address: "srv",
		Meta: map[string]string{"submitURL": "evaluate/v2"}}}})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(p.scorers))
	assert.NotEqual(t, cp, p.scorers[0])
}

func TestProvider_updateSrv_addsTwo(t *testing.T) {
	p := newProvider(nil, "scorer")
	err := p.updateSrv([]*api.ServiceEntry{{Service: &api.AgentService{Service: "olia", Port: 80, Address: "srv",
		Meta: map[string]string{"submitURL": "evaluate"}}}})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(p.scorers))
	err = p.updateSrv([]*api.ServiceEntry{{Service: &api.AgentService{Service: "olia", Port: 81, Address: "srv",
		Meta: map[string]string{"submitURL": "evaluate"}}},
		{Service: &api.AgentService{Service: "olia", Port: 80, Address: "srv",
			Meta: map[string]string{"submitURL": "evaluate"}}}})
	assert.Nil(t, err)
	assert.Equal(t, 2, len(p.scorers))
}

func TestProvider_updateSrv_drops(t *testing.T) {
	p := newProvider(nil, "scorer")
	err := p.updateSrv([]*api.ServiceEntry{{Service: &api.AgentService{Service: "olia", Port: 80, Address: "srv",
		Meta: map[string]string{"submitURL": "evaluate"}}},
		{Service: &api.AgentService{Service: "olia", Port: 81, Address: "srv",
			Meta: map[string]string{"submitURL": "evaluate"}}},
		{Service: &api.AgentService{Service: "olia", Port: 82, Address: "srv",
			Meta: map[string]string{"submitURL": "evaluate"}}}})
	assert.Nil(t, err)
	assert.Equal(t, 3, len(p.scorers))
	c1, c2 := p.scorers[0], p.scorers[2]
	err = p.updateSrv([]*api.ServiceEntry{
		{Service: &api.AgentService{Service: "olia", Port: 82, Address: "srv",
			Meta: map[string]string{"submitURL": "evaluate"}}},
		{Service: &api.AgentService{Service: "olia", Port: 80, Address: "srv",
			Meta: map[string]string{"submitURL": "evaluate"}}},
	})
	assert.Nil(t, err)
	assert.Equal(t, 2, len(p.scorers))
	assert.Equal(t, c1, p.scorers[0])
	assert.Equal(t, c2, p.scorers[1])
}

func Test_getPriority(t *testing.T) {
	tests := []struct {
		name    string
		meta    map[string]string
		want    float64
		wantErr bool
	}{
		{name: "default", meta: map[string]string{}, want: 1, wantErr: false},
		{name: "value", meta: map[string]string{"priority": "2.5"}, want: 2.5, wantErr: false},
		{name: "too small", meta: map[string]string{"priority": "0.1"}, want: 0, wantErr: true},
		{name: "too big", meta: map[string]string{"priority": "100"}, want: 0, wantErr: true},
		{name: "not a number", meta: map[string]string{"priority": "olia"}, want: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := getPriority(&api.ServiceEntry{Service: &api.AgentService{Meta: tt.meta}})
			if (err != nil) != tt.wantErr {
				t.Errorf("getPriority() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("getPriority() = %v, want %v", got, tt.want)
			}
		})
	}
}
