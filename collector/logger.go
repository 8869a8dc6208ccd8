package collector

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "collector")
