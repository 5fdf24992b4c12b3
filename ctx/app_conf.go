package ctx

import (
	"os"
	"strings"

	"github.com/silvernodes/silvernode-sched/utils/errutil"
	"gopkg.in/yaml.v2"
)

type AppConf struct {
	datas map[interface{}]interface{}
}

func NewAppConf() *AppConf {
	a := new(AppConf)
	a.datas = make(map[interface{}]interface{})
	return a
}

func (a *AppConf) LoadAppYaml(text string) error {
	if err := yaml.Unmarshal([]byte(text), a.datas); err != nil {
		return errutil.ExtendWithCode(errutil.CodeBadConf, "parse app conf", err)
	}
	return nil
}

func (a *AppConf) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errutil.Extend("read app conf "+path, err)
	}
	if err := yaml.Unmarshal(data, a.datas); err != nil {
		return errutil.ExtendWithCode(errutil.CodeBadConf, "parse app conf "+path, err)
	}
	return nil
}

// GetConfDatas decodes the node found under a dotted prefix ("sched.log")
// into ref by re-marshalling the subtree.
func (a *AppConf) GetConfDatas(prefix string, ref interface{}) error {
	prefixs := strings.Split(prefix, ".")
	data, b := a.getConfDatasByPrefix(prefixs, 0, a.datas)
	if !b {
		return errutil.NewWithCode(errutil.CodeBadConf, "no such conf prefix: "+prefix)
	}
	raw, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, ref); err != nil {
		return errutil.ExtendWithCode(errutil.CodeBadConf, "decode conf "+prefix, err)
	}
	return nil
}

func (a *AppConf) getConfDatasByPrefix(prefixs []string, deep int, datas map[interface{}]interface{}) (interface{}, bool) {
	ln := len(prefixs)
	if deep >= ln {
		return nil, false
	}
	data, b := datas[prefixs[deep]]
	if !b {
		return nil, false
	}
	if deep == ln-1 {
		return data, true
	}
	datamap, ok := data.(map[interface{}]interface{})
	if !ok {
		return nil, false
	}
	return a.getConfDatasByPrefix(prefixs, deep+1, datamap)
}

func (a *AppConf) CheckConfExists(prefix string) bool {
	prefixs := strings.Split(prefix, ".")
	_, b := a.getConfDatasByPrefix(prefixs, 0, a.datas)
	return b
}
